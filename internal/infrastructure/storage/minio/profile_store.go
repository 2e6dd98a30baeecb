package minio

import (
	"bytes"
	"context"
	"io"

	miniogo "github.com/minio/minio-go/v7"

	"github.com/turtacn/MorphoScreen/internal/domain/profile"
	"github.com/turtacn/MorphoScreen/internal/domain/screen"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MorphoScreen/pkg/errors"
)

// ProfileStore reads profile CSVs from object storage and writes ranking
// exports back.
type ProfileStore struct {
	client *Client
}

// NewProfileStore creates a ProfileStore.
func NewProfileStore(client *Client) *ProfileStore {
	return &ProfileStore{client: client}
}

// FetchProfile downloads and parses the profile CSV at object.
func (s *ProfileStore) FetchProfile(ctx context.Context, object string, metaColumns []string) (*profile.Table, error) {
	obj, err := s.client.mc.GetObject(ctx, s.client.bucket, object, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeProfileFetch, "open profile object").WithDetail(object)
	}
	defer obj.Close()

	table, err := profile.ReadCSV(obj, metaColumns)
	if err != nil {
		if resp := miniogo.ToErrorResponse(firstCause(err)); resp.Code == "NoSuchKey" {
			return nil, errors.Newf(errors.ErrCodeProfileFetch, "profile object %q not found", object)
		}
		return nil, err
	}

	s.client.logger.Info("profile loaded",
		logging.String("object", object),
		logging.Int("cells", table.NumRows()),
		logging.Int("features", table.NumFeatures()),
	)
	return table, nil
}

// PutProfile uploads a raw profile CSV.
func (s *ProfileStore) PutProfile(ctx context.Context, object string, r io.Reader, size int64) error {
	_, err := s.client.mc.PutObject(ctx, s.client.bucket, object, r, size, miniogo.PutObjectOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "upload profile").WithDetail(object)
	}
	return nil
}

// PutRanking exports a ranking as CSV next to the run's artifacts.
func (s *ProfileStore) PutRanking(ctx context.Context, object string, ranking *screen.Ranking) error {
	var buf bytes.Buffer
	if err := ranking.WriteCSV(&buf); err != nil {
		return err
	}
	_, err := s.client.mc.PutObject(ctx, s.client.bucket, object, &buf, int64(buf.Len()), miniogo.PutObjectOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "upload ranking").WithDetail(object)
	}
	return nil
}

// firstCause walks to the innermost error for minio error inspection.
func firstCause(err error) error {
	for {
		app := errors.AsAppError(err)
		if app == nil || app.Cause == nil {
			return err
		}
		err = app.Cause
	}
}
