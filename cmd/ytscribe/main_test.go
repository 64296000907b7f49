package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jo-hoe/ytscribe/internal/progress"
)

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	sink := progressPrinter(&buf)

	text := "hello"
	sink.Emit(progress.Event{Step: progress.StepDownload, Progress: 5, Message: "Downloading audio"})
	sink.Emit(progress.Event{Step: progress.StepComplete, Progress: 100, Message: "done", Text: &text, Files: &progress.Files{Text: "/out/t.txt"}})
	sink.Emit(progress.Event{Step: progress.StepError, Progress: 5, Error: "Error processing the request"})

	assert.Equal(t, "[  5%] download: Downloading audio\n"+
		"[100%] complete: done (/out/t.txt)\n"+
		"[fail] Error processing the request\n", buf.String())
}
