// Package gitsync provides a git Source for gitcon repositories.
//
// The Source clones a remote repository into the working directory on
// Populate and fast-forwards it on Update by fetching and force checking out
// the head of the tracked branch. A source pinned to a commit is never
// updated. Supported authentication methods:
//   - GitHub App (short-lived installation tokens)
//   - Personal Access Tokens (PAT)
//   - SSH keys with fingerprint validation, bundled or on disk
//   - Basic HTTP authentication with extra headers
//
// Every network call runs through a credential.Executor. SSH keys are bound
// to the credential session for the duration of the call, other calls are
// serialized against it.
//
// Example usage:
//
//	src, err := gitsync.New("https://github.com/myorg/config.git",
//	    gitsync.WithReference("main"),
//	    gitsync.WithSecret(&config.SecretTokenAuth{Token: token}),
//	)
//	if err != nil {
//	    return err
//	}
//	repo := repository.NewDynamic(dir, src)
//	if err := repo.Init(ctx); err != nil {
//	    return err
//	}
//	defer repo.Close()
package gitsync
