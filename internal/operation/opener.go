package operation

import "context"

// Opener hands a file to the operating system shell, the way a user
// double-clicking it would. Open returns once the request is accepted and
// does not wait for the launched program.
type Opener interface {
	Open(ctx context.Context, path string) error
}

// ShellOpener opens files with the host's default handler.
type ShellOpener struct{}

func (ShellOpener) Open(_ context.Context, path string) error {
	return shellOpen(path)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, path string) error

func (f OpenerFunc) Open(ctx context.Context, path string) error { return f(ctx, path) }
