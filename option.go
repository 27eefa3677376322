package keyfs

import "go.uber.org/zap"

type Option func(fs *FileSystem)

// WithLogger attaches a structured event sink to the filesystem. The
// facade emits a debug event per operation; it never requires one to be
// present for correctness.
func WithLogger(log *zap.Logger) Option {
	return func(fs *FileSystem) { fs.log = log }
}

// WithWorkingDirectory overrides the initial working directory, which
// otherwise starts at the home directory. The key is used verbatim.
func WithWorkingDirectory(cwd Key) Option {
	return func(fs *FileSystem) { fs.wd = cwd }
}
