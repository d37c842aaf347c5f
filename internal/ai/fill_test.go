package ai

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/greenthumb/sprout/internal/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAsker struct {
	questions []string
	err       error
}

func (f *fakeAsker) Ask(ctx context.Context, question string) (rag.Answer, error) {
	f.questions = append(f.questions, question)
	if f.err != nil {
		return rag.Answer{}, f.err
	}
	if strings.Contains(question, "soil") {
		return rag.Answer{Query: question, Response: "Loamy", State: rag.StateCacheHit, Similarity: 0.95}, nil
	}
	return rag.Answer{Query: question, Response: "answer to " + question, State: rag.StateDone}, nil
}

func writeInput(t *testing.T, content string) (in, out string) {
	t.Helper()
	dir := t.TempDir()
	in = filepath.Join(dir, "in.tsv")
	out = filepath.Join(dir, "out.tsv")
	require.NoError(t, os.WriteFile(in, []byte(content), 0o644))
	return in, out
}

func TestFillWithHeaders(t *testing.T) {
	in, out := writeInput(t, "question\nWhat soil does a fern need?\nHow tall is a monstera?\n")
	asker := &fakeAsker{}

	err := Fill(context.Background(), asker, FillConf{In: in, Out: out, Delimiter: "\\t", WithHeaders: true}, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t,
		"question\tanswer\tstate\tsimilarity\n"+
			"What soil does a fern need?\tLoamy\tcache-hit\t0.950\n"+
			"How tall is a monstera?\tanswer to How tall is a monstera?\tdone\t0.000\n",
		string(data))
	assert.Equal(t, []string{"What soil does a fern need?", "How tall is a monstera?"}, asker.questions)
}

func TestFillTagsMultiColumnRows(t *testing.T) {
	in, out := writeInput(t, "plant,question\nfern,Does it like shade?\n")
	asker := &fakeAsker{}

	err := Fill(context.Background(), asker, FillConf{In: in, Out: out, Delimiter: ",", WithHeaders: true}, nil)
	require.NoError(t, err)
	require.Len(t, asker.questions, 1)
	assert.Equal(t, "<plant>\n  fern\n</plant>\n<question>\n  Does it like shade?\n</question>", asker.questions[0])
}

func TestFillWithoutHeadersSkipsBlankRows(t *testing.T) {
	in, out := writeInput(t, "first\n \nsecond\n")
	asker := &fakeAsker{}

	require.NoError(t, Fill(context.Background(), asker, FillConf{In: in, Out: out}, nil))
	assert.Equal(t, []string{"first", "second"}, asker.questions)
}

func TestFillStopsOnError(t *testing.T) {
	in, out := writeInput(t, "first\nsecond\n")
	cause := &rag.GenerationError{Op: "generate", Err: errors.New("quota")}
	asker := &fakeAsker{err: cause}

	err := Fill(context.Background(), asker, FillConf{In: in, Out: out}, nil)
	assert.ErrorIs(t, err, cause)
	assert.Len(t, asker.questions, 1)
}

func TestFillBadDelimiter(t *testing.T) {
	in, out := writeInput(t, "first\n")
	err := Fill(context.Background(), &fakeAsker{}, FillConf{In: in, Out: out, Delimiter: ";;"}, nil)
	assert.ErrorContains(t, err, "single character")
	_, err = os.Stat(out)
	assert.ErrorIs(t, err, os.ErrNotExist, "no output file is created")
}

func TestFillBadDelimiterKeepsExistingOutput(t *testing.T) {
	in, out := writeInput(t, "first\n")
	require.NoError(t, os.WriteFile(out, []byte("earlier answers\n"), 0o644))

	asker := &fakeAsker{}
	err := Fill(context.Background(), asker, FillConf{In: in, Out: out, Delimiter: ";;"}, nil)
	require.Error(t, err)
	assert.Empty(t, asker.questions)

	kept, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "earlier answers\n", string(kept))
}
