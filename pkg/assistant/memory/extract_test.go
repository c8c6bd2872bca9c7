package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	reply string
	err   error
	last  string
}

func (c *scriptedClient) Query(_ context.Context, prompt string) (string, error) {
	c.last = prompt
	return c.reply, c.err
}

func TestExtractAndMerge(t *testing.T) {
	profiles := tempProfileStore(t)
	client := &scriptedClient{reply: `Here is what I learned:
{"facts": {"city": "Oslo"}, "interests": ["chess"], "name": "Sam"}`}

	x := NewExtractor(client, profiles, nil)
	p, extraction, changed := x.ExtractAndMerge(context.Background(), "I'm Sam from Oslo, I like chess", "Nice to meet you")

	assert.True(t, changed)
	assert.Equal(t, "Sam", p.Name)
	assert.Equal(t, "Oslo", p.Facts["city"])
	assert.Equal(t, []string{"chess"}, p.Interests)
	assert.Equal(t, "Sam", extraction.Name)

	assert.Contains(t, client.last, "User: I'm Sam from Oslo, I like chess")
	assert.Contains(t, client.last, "Assistant: Nice to meet you")
}

func TestExtractNothingLearned(t *testing.T) {
	profiles := tempProfileStore(t)
	client := &scriptedClient{reply: `{"facts": {}, "interests": [], "name": null}`}

	x := NewExtractor(client, profiles, nil)
	_, _, changed := x.ExtractAndMerge(context.Background(), "hm", "ok")
	assert.False(t, changed)
}

func TestExtractUnparseableReply(t *testing.T) {
	profiles := tempProfileStore(t)
	_, err := profiles.Merge(Extraction{Name: "Sam"})
	require.NoError(t, err)

	x := NewExtractor(&scriptedClient{reply: "I couldn't find anything noteworthy."}, profiles, nil)
	p, _, changed := x.ExtractAndMerge(context.Background(), "hi", "hello")

	assert.False(t, changed)
	assert.Equal(t, "Sam", p.Name, "profile untouched on parse failure")
}

func TestExtractQueryError(t *testing.T) {
	profiles := tempProfileStore(t)
	x := NewExtractor(&scriptedClient{err: errors.New("model offline")}, profiles, nil)
	_, _, changed := x.ExtractAndMerge(context.Background(), "hi", "hello")
	assert.False(t, changed)
}

func TestParseExtractionSpan(t *testing.T) {
	e := parseExtraction(`noise before {"facts":{"a":"b"},"interests":[],"name":null} noise after`)
	assert.Equal(t, "b", e.Facts["a"])

	assert.True(t, parseExtraction("no braces here").Empty())
	assert.True(t, parseExtraction("{broken").Empty())
}
