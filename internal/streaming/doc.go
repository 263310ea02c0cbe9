/*
Package streaming sends converted outputs to HTTP clients with timeout
protection.

Outputs can be tens of megabytes and a slow or vanished client would
otherwise hold the handler goroutine and the buffered output indefinitely.
A TimeoutWriter bounds every write, cancels when no write succeeds for the
idle period, and splits large writes into chunks that are flushed as they go.

# Usage

	err := streaming.WriteOutput(r.Context(), w, streaming.Output{
		Data:     result.Data,
		MimeType: result.MimeType,
		Filename: "converted.mp4",
	}, streaming.DefaultConfig())
	if err != nil && !errors.Is(err, streaming.ErrClientGone) {
		log.Warn("output write failed: %v", err)
	}

WriteOutput sets Content-Type, Content-Length and an attachment
Content-Disposition before writing the body.

# Errors

  - ErrWriteTimeout: a single write exceeded Config.WriteTimeout.
  - ErrClientGone: the request context was canceled.
  - ErrStreamCanceled: the writer was closed or hit the idle timeout.
*/
package streaming
