package jobs

import (
	"log/slog"
	"time"

	"github.com/jo-hoe/ytscribe/internal/progress"
)

// StoreSink mirrors progress events of job id into store.
// Store failures are logged and never interrupt the job.
func StoreSink(store Store, id string, log *slog.Logger) progress.Sink {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With("job_id", id)
	now := time.Now
	return progress.SinkFunc(func(ev progress.Event) {
		var err error
		switch ev.Step {
		case progress.StepComplete:
			var txt, js string
			if ev.Files != nil {
				txt, js = ev.Files.Text, ev.Files.JSON
			}
			err = store.SaveResult(id, txt, js, now())
		case progress.StepError:
			msg := ev.Error
			if msg == "" {
				msg = ev.Message
			}
			err = store.SaveError(id, msg, now())
		case progress.StepConnect:
			err = store.MarkRunning(id, now())
		default:
			err = store.UpdateProgress(id, string(ev.Step), ev.Progress)
		}
		if err != nil {
			log.Warn("job history update failed", "step", ev.Step, "err", err)
		}
	})
}
