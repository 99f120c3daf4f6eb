package cli

import (
	stderrors "errors"
	"fmt"
	"io"

	"github.com/grovetools/watchd/errors"
)

// ErrorHandler prints user-facing hints for well-known error codes.
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler writing to out.
func NewErrorHandler(out io.Writer, verbose bool) *ErrorHandler {
	return &ErrorHandler{Verbose: verbose, Out: out}
}

// Handle prints err with a hint chosen by its code and returns it unchanged.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}

	fmt.Fprintf(h.Out, "%s %v\n", errorStyle.Render("Error:"), err)

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		h.hint("Run 'watchd config' to print the default settings.")
	case errors.ErrCodeConfigInvalid:
		h.hint("Run 'watchd schema settings' to see the accepted settings.")
	case errors.ErrCodeDaemonNotRunning:
		h.hint("Start it with 'watchd start <dir>...'.")
	case errors.ErrCodeDaemonAlreadyRunning:
		h.hint("Stop it first with 'watchd quit' or 'watchd stop'.")
	case errors.ErrCodeSocketBindFailed:
		if socket := detail(err, "socket"); socket != "" {
			h.hint(fmt.Sprintf("Check that %s is writable and not served by another daemon.", socket))
		}
	case errors.ErrCodeBackupCorrupt:
		if path := detail(err, "path"); path != "" {
			h.hint(fmt.Sprintf("Move %s aside to start with an empty index.", path))
		}
	case errors.ErrCodeCommandNotFound:
		h.hint("Check the cmd of each filetype_settings rule.")
	}

	if h.Verbose {
		var watchErr *errors.WatchError
		if stderrors.As(err, &watchErr) {
			fmt.Fprintf(h.Out, "\nError details:\n%s\n", watchErr.ToJSON())
		}
	}
	return err
}

func (h *ErrorHandler) hint(msg string) {
	fmt.Fprintln(h.Out, mutedStyle.Render(msg))
}

func detail(err error, key string) string {
	var watchErr *errors.WatchError
	if !stderrors.As(err, &watchErr) || watchErr.Details == nil {
		return ""
	}
	if v, ok := watchErr.Details[key]; ok {
		return fmt.Sprint(v)
	}
	return ""
}
