package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/bycloud/cloudpilot/internal/logging"
	"github.com/bycloud/cloudpilot/internal/metrics"
	"github.com/bycloud/cloudpilot/pkg/api"
)

// Mutations never touch the local listing speculatively: the only
// source of truth is the next successful listing fetch, which each
// successful mutation triggers. A failed mutation triggers nothing.

// Upload sends files into directoryID, waits out the configured
// settle delay for backend eventual consistency, then resyncs.
func (b *Browser) Upload(ctx context.Context, directoryID string, parts []api.UploadPart) (*api.UploadResult, error) {
	userID, err := b.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	result, err := b.client.UploadFiles(ctx, userID, directoryID, parts)
	metrics.RecordMutation("upload", err == nil)
	if err != nil {
		return nil, b.mutationFailure(err)
	}

	b.settle(ctx)
	b.resync(ctx, directoryID)
	return result, nil
}

// CreateFolder creates a folder under parentID and resyncs it.
func (b *Browser) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	userID, err := b.resolver.Resolve(ctx)
	if err != nil {
		return "", err
	}

	id, err := b.client.CreateDirectory(ctx, userID, parentID, name)
	metrics.RecordMutation("create_folder", err == nil)
	if err != nil {
		return "", b.mutationFailure(err)
	}

	b.resync(ctx, parentID)
	return id, nil
}

// DeleteFile removes a file and resyncs the current directory
// immediately. The file may still be transiently present in the fresh
// listing when the backend lags; that listing is published anyway.
func (b *Browser) DeleteFile(ctx context.Context, id string) error {
	_, err := b.client.DeleteFile(ctx, id)
	metrics.RecordMutation("delete_file", err == nil)
	if err != nil {
		return b.mutationFailure(err)
	}

	b.resync(ctx, b.currentDirectoryID())
	return nil
}

// DeleteFolder removes a folder (descendants go with it, server-side)
// and resyncs the current directory immediately.
func (b *Browser) DeleteFolder(ctx context.Context, id string) error {
	err := b.client.DeleteDirectory(ctx, id)
	metrics.RecordMutation("delete_folder", err == nil)
	if err != nil {
		return b.mutationFailure(err)
	}

	b.resync(ctx, b.currentDirectoryID())
	return nil
}

// Download streams file content. Shares the session teardown behavior
// with the rest of the pipeline: a 401 clears the credential store.
func (b *Browser) Download(ctx context.Context, id string) (io.ReadCloser, *api.DownloadInfo, error) {
	rc, info, err := b.client.Download(ctx, id)
	if err != nil {
		return nil, nil, b.mutationFailure(err)
	}
	return rc, info, nil
}

func (b *Browser) currentDirectoryID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return ""
	}
	return b.current.DirectoryID
}

// mutationFailure maps authorization failures to session teardown and
// passes everything else through untouched.
func (b *Browser) mutationFailure(err error) error {
	if !api.IsAuthFailure(err) {
		return err
	}
	if cerr := b.store.Clear(); cerr != nil {
		logging.Warn("could not clear session state", zap.Error(cerr))
	}
	return fmt.Errorf("%w: %v", api.ErrUnauthenticated, err)
}

// settle pauses for the eventual-consistency allowance, bailing early
// if the context goes away.
func (b *Browser) settle(ctx context.Context) {
	if b.settleDelay <= 0 {
		return
	}
	t := time.NewTimer(b.settleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// resync reloads a directory after a successful mutation. Superseded
// and cancelled loads are fine — a newer navigation won; genuine
// failures are logged but never fail the mutation that triggered them.
func (b *Browser) resync(ctx context.Context, directoryID string) {
	if _, err := b.Load(ctx, directoryID); err != nil {
		if errors.Is(err, ErrSuperseded) || errors.Is(err, context.Canceled) {
			return
		}
		logging.Warn("post-mutation resync failed",
			zap.String("directory", keyFor(directoryID)), zap.Error(err))
	}
}
