package cli

import (
	"context"
	"io"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// progressBar shows batch progress. The bar is added on the first update,
// once the number of files is known. A nil *progressBar does nothing.
type progressBar struct {
	container *mpb.Progress
	bar       *mpb.Bar
}

func newProgressBar(ctx context.Context, out io.Writer) *progressBar {
	return &progressBar{container: mpb.NewWithContext(ctx, mpb.WithOutput(out), mpb.WithWidth(50))}
}

// increment is not safe for concurrent use; the batch serializes callbacks.
func (pb *progressBar) increment(total int) {
	if pb == nil {
		return
	}
	if pb.bar == nil {
		pb.bar = pb.container.AddBar(int64(total),
			mpb.PrependDecorators(
				decor.Name("anonymizing "),
				decor.CountersNoUnit("%d / %d", decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.OnComplete(
					decor.Percentage(decor.WCSyncSpace), "done",
				),
			),
		)
	}
	pb.bar.Increment()
}

func (pb *progressBar) wait() {
	if pb == nil {
		return
	}
	if pb.bar != nil && !pb.bar.Completed() {
		pb.bar.Abort(false)
	}
	pb.container.Wait()
}
