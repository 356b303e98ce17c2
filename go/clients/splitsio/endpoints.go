package splitsio

const (
	BaseURL = "https://splits.io"

	RunsEndpoint = "/api/v4/runs"

	// Accept header value that asks for the file in the format it was
	// uploaded in.
	OriginalTimerContentType = "application/original-timer"
)
