package runner

import "context"

// RepositoryURL returns the origin remote of the repository at opts.Dir,
// or nil when it cannot be determined.
func RepositoryURL(ctx context.Context, e Executor, opts Options) *string {
	return bestEffort(ctx, e, "git", []string{"remote", "get-url", "origin"}, opts)
}

// RepositoryHead returns the commit hash at HEAD, or nil when it cannot be
// determined.
func RepositoryHead(ctx context.Context, e Executor, opts Options) *string {
	return bestEffort(ctx, e, "git", []string{"--no-pager", "log", "-n", "1", "--pretty=format:%H"}, opts)
}

func bestEffort(ctx context.Context, e Executor, name string, args []string, opts Options) *string {
	out, err := e.Run(ctx, name, args, opts)
	if err != nil || out == "" {
		return nil
	}
	return &out
}
