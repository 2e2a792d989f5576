package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/yourusername/aurora-dl/internal/domain"
)

const verifyParallelism = 4

// verifyFiles checks that every staged file exists and, when the expected
// size is known, that it is complete
func verifyFiles(ctx context.Context, rec *domain.DownloadRecord) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(verifyParallelism)

	for _, f := range rec.Files {
		f := f
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			info, err := os.Stat(f.Path)
			switch {
			case errors.Is(err, os.ErrNotExist):
				return &domain.FileMissingError{PackageName: rec.PackageName, Path: f.Path, Reason: "file does not exist"}
			case err != nil:
				return &domain.FileMissingError{PackageName: rec.PackageName, Path: f.Path, Reason: err.Error()}
			case info.IsDir():
				return &domain.FileMissingError{PackageName: rec.PackageName, Path: f.Path, Reason: "path is a directory"}
			case f.Size > 0 && info.Size() != f.Size:
				return &domain.FileMissingError{
					PackageName: rec.PackageName,
					Path:        f.Path,
					Reason:      fmt.Sprintf("size %d, expected %d", info.Size(), f.Size),
				}
			}
			return nil
		})
	}

	return g.Wait()
}
