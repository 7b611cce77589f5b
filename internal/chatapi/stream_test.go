// ABOUTME: Tests for the streaming state machine
// ABOUTME: Covers ordering, exactly-once closure under races, and fallback paths

package chatapi

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parseSSE splits a raw SSE transcript into decoded chunks and counts the
// terminal sentinels. Anything after a sentinel fails the test.
func parseSSE(t *testing.T, raw string) (chunks []ChatCompletionChunk, doneCount int) {
	t.Helper()

	for _, block := range strings.Split(raw, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		require.True(t, strings.HasPrefix(block, "data: "), "unexpected SSE block: %q", block)
		payload := strings.TrimPrefix(block, "data: ")

		if payload == doneSentinel {
			doneCount++
			continue
		}
		require.Zero(t, doneCount, "data after terminal sentinel: %q", payload)

		var chunk ChatCompletionChunk
		require.NoError(t, json.Unmarshal([]byte(payload), &chunk))
		chunks = append(chunks, chunk)
	}
	return chunks, doneCount
}

func newTestStream(buf *bytes.Buffer) *streamWriter {
	return newStreamWriter(buf, nil, "chatcmpl-test", "openwire", time.Now().Unix(), nil)
}

func TestStreamRoleAnnouncedBeforeContent(t *testing.T) {
	var buf bytes.Buffer
	sw := newTestStream(&buf)

	sw.WriteDelta("Hello ")
	sw.WriteDelta("world")
	sw.FinishFromLifecycle()

	chunks, done := parseSSE(t, buf.String())
	assert.Equal(t, 1, done)
	require.Len(t, chunks, 4)

	assert.Equal(t, "assistant", chunks[0].Choices[0].Delta.Role)
	assert.Empty(t, chunks[0].Choices[0].Delta.Content)
	assert.Equal(t, "Hello ", chunks[1].Choices[0].Delta.Content)
	assert.Equal(t, "world", chunks[2].Choices[0].Delta.Content)

	final := chunks[3].Choices[0]
	require.NotNil(t, final.FinishReason)
	assert.Equal(t, "stop", *final.FinishReason)
	assert.Empty(t, final.Delta.Content)
}

func TestStreamNonTerminalChunksHaveNullFinishReason(t *testing.T) {
	var buf bytes.Buffer
	sw := newTestStream(&buf)

	sw.WriteDelta("x")
	sw.FinishFromLifecycle()

	chunks, _ := parseSSE(t, buf.String())
	require.Len(t, chunks, 3)
	assert.Nil(t, chunks[0].Choices[0].FinishReason)
	assert.Nil(t, chunks[1].Choices[0].FinishReason)
	require.NotNil(t, chunks[2].Choices[0].FinishReason)
}

func TestStreamExactlyOnceCloseUnderRace(t *testing.T) {
	var buf bytes.Buffer
	sw := newTestStream(&buf)

	var wg sync.WaitGroup
	start := make(chan struct{})
	closers := []func(){
		sw.FinishFromLifecycle,
		func() { sw.FinishFromCompletion([]string{"pong"}) },
		func() { sw.FinishFromError("Error: boom") },
		sw.FinishFromLifecycle,
	}
	for _, closeFn := range closers {
		wg.Add(1)
		go func(fn func()) {
			defer wg.Done()
			<-start
			fn()
		}(closeFn)
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			sw.WriteDelta("racer")
		}()
	}

	close(start)
	wg.Wait()

	select {
	case <-sw.Done():
	default:
		t.Fatal("stream not marked done")
	}

	_, done := parseSSE(t, buf.String())
	assert.Equal(t, 1, done, "terminal sentinel must be written exactly once")
}

func TestStreamCompletionFallbackForCommandReply(t *testing.T) {
	var buf bytes.Buffer
	sw := newTestStream(&buf)

	sw.FinishFromCompletion([]string{"pong"})

	chunks, done := parseSSE(t, buf.String())
	assert.Equal(t, 1, done)
	require.Len(t, chunks, 3)
	assert.Equal(t, "assistant", chunks[0].Choices[0].Delta.Role)
	assert.Equal(t, "pong", chunks[1].Choices[0].Delta.Content)
	require.NotNil(t, chunks[2].Choices[0].FinishReason)
}

func TestStreamCompletionFallbackJoinsParts(t *testing.T) {
	var buf bytes.Buffer
	sw := newTestStream(&buf)

	sw.FinishFromCompletion([]string{"one", "two"})

	chunks, _ := parseSSE(t, buf.String())
	require.Len(t, chunks, 3)
	assert.Equal(t, "one\n\ntwo", chunks[1].Choices[0].Delta.Content)
}

func TestStreamCompletionFallbackWithoutText(t *testing.T) {
	var buf bytes.Buffer
	sw := newTestStream(&buf)

	sw.FinishFromCompletion(nil)

	chunks, done := parseSSE(t, buf.String())
	assert.Equal(t, 1, done)
	require.Len(t, chunks, 1, "no role or content chunk when there is nothing to say")
	require.NotNil(t, chunks[0].Choices[0].FinishReason)
}

func TestStreamCompletionFallbackSkippedDuringAgentRun(t *testing.T) {
	var buf bytes.Buffer
	sw := newTestStream(&buf)

	sw.MarkAgentRunStarted()
	sw.FinishFromCompletion([]string{"final text"})

	assert.Empty(t, buf.String(), "fallback must defer to lifecycle closure")
	select {
	case <-sw.Done():
		t.Fatal("stream closed by fallback during agent run")
	default:
	}

	sw.WriteDelta("still streaming")
	sw.FinishFromLifecycle()

	chunks, done := parseSSE(t, buf.String())
	assert.Equal(t, 1, done)
	require.Len(t, chunks, 3)
	assert.Equal(t, "still streaming", chunks[1].Choices[0].Delta.Content)
}

func TestStreamErrorFinish(t *testing.T) {
	var buf bytes.Buffer
	sw := newTestStream(&buf)

	sw.FinishFromError("Error: dispatch failed")

	chunks, done := parseSSE(t, buf.String())
	assert.Equal(t, 1, done)
	require.Len(t, chunks, 3)
	assert.Equal(t, "assistant", chunks[0].Choices[0].Delta.Role)
	assert.Equal(t, "Error: dispatch failed", chunks[1].Choices[0].Delta.Content)
}

func TestStreamAbortWritesNothingFurther(t *testing.T) {
	var buf bytes.Buffer
	sw := newTestStream(&buf)

	sw.WriteDelta("partial")
	written := buf.String()

	sw.Abort()
	sw.WriteDelta("dropped")
	sw.FinishFromLifecycle()

	assert.Equal(t, written, buf.String(), "abort must stop all output")
	assert.NotContains(t, buf.String(), doneSentinel)

	select {
	case <-sw.Done():
	default:
		t.Fatal("abort must mark the stream done")
	}
}
