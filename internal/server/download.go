package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/jo-hoe/ytscribe/internal/audio"
	"github.com/jo-hoe/ytscribe/internal/common"
	"github.com/jo-hoe/ytscribe/internal/processor"
	"github.com/jo-hoe/ytscribe/internal/storage"
	"github.com/jo-hoe/ytscribe/internal/util"
)

// Downloader fetches the audio of a video as an MP3 file.
type Downloader interface {
	DownloadMP3(ctx context.Context, url, mp3Path string) error
}

// handleDownload extracts the audio as MP3, streams it back and deletes it on every path.
func (svc *Service) handleDownload(w http.ResponseWriter, r *http.Request) {
	url, ok := svc.decodeURL(w, r)
	if !ok {
		return
	}
	if svc.Downloader == nil {
		writeError(w, http.StatusServiceUnavailable, processor.MsgProcessingFailed)
		return
	}

	id := util.NewJobID(time.Now())
	log := svc.logger().With("download_id", id, "url", url, "request_id", RequestID(r.Context()))
	scratch, err := storage.NewScratch(svc.Cfg.Acquisition.WorkDir, id, log)
	if err != nil {
		log.Error("download workspace", "err", err)
		writeError(w, http.StatusInternalServerError, processor.MsgProcessingFailed)
		return
	}
	defer scratch.Cleanup()

	mp3Path := scratch.Track("download", ".mp3")
	if err := svc.Downloader.DownloadMP3(r.Context(), url, mp3Path); err != nil {
		log.Error("download failed", "err", err)
		writeError(w, http.StatusInternalServerError, processor.MsgProcessingFailed)
		return
	}

	f, err := os.Open(mp3Path) // #nosec G304 - path comes from the job scratch space
	if err != nil {
		log.Error("open download", "err", err)
		writeError(w, http.StatusInternalServerError, processor.MsgProcessingFailed)
		return
	}
	defer func() { _ = f.Close() }()

	duration, err := audio.MP3Duration(f)
	if err != nil {
		log.Error("downloaded file is not a valid mp3", "err", err)
		writeError(w, http.StatusInternalServerError, processor.MsgProcessingFailed)
		return
	}
	size, err := f.Seek(0, io.SeekEnd)
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		log.Error("rewind download", "err", err)
		writeError(w, http.StatusInternalServerError, processor.MsgProcessingFailed)
		return
	}

	h := w.Header()
	h.Set("Content-Type", common.ContentTypeMPEG)
	h.Set("Content-Disposition", `attachment; filename="audio.mp3"`)
	h.Set("Content-Length", strconv.FormatInt(size, 10))
	h.Set(common.HeaderAudioLength, fmt.Sprintf("%.3f", duration.Seconds()))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		log.Info("download stream interrupted", "err", err)
		return
	}
	log.Info("download served", "bytes", size, "seconds", duration.Seconds())
}
