package embed_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AlfredDev/orchestratord/internal/knowledge/embed"
	"github.com/AlfredDev/orchestratord/internal/model"
)

func TestEmbedIsDeterministic(t *testing.T) {
	e := embed.New(0)
	a := e.Embed("the build is now green")
	b := e.Embed("The Build Is Now Green")
	assert.Equal(t, a, b, "normalization should make case/whitespace irrelevant")
}

func TestEmbedHasFixedWidth(t *testing.T) {
	e := embed.New(0)
	v := e.Embed("anything")
	assert.Len(t, v, model.EmbeddingDim)
}

func TestEmbedDistinctTextsDiffer(t *testing.T) {
	e := embed.New(0)
	a := e.Embed("we chose postgres over sqlite")
	b := e.Embed("the retry budget is five per minute")
	assert.NotEqual(t, a, b)
}

func TestEmbedCacheReturnsSameSlice(t *testing.T) {
	e := embed.New(4)
	a := e.Embed("cached text")
	b := e.Embed("cached text")
	assert.Equal(t, a, b)
}
