package service

import (
	"context"
	"sort"
	"strings"

	"github.com/Skotchmaster/data_delivery/internal/access"
	"github.com/Skotchmaster/data_delivery/internal/clock"
	"github.com/Skotchmaster/data_delivery/internal/errs"
	"github.com/Skotchmaster/data_delivery/internal/logging"
	"github.com/Skotchmaster/data_delivery/internal/models"
	"github.com/Skotchmaster/data_delivery/internal/repo"
	"github.com/Skotchmaster/data_delivery/internal/storage"
	"github.com/Skotchmaster/data_delivery/internal/transport"
)

type FileService struct {
	Repo    *repo.GormRepo
	Storage storage.Store
	Clock   clock.Clock
	Events  EventPublisher
}

// RegisterFile records an uploaded file and recomputes the project size
// under the project row lock.
func (s *FileService) RegisterFile(ctx context.Context, sess *Session, publicID string, req transport.NewFileRequest) (*models.File, error) {
	return s.upsert(ctx, sess, publicID, req, false)
}

// UpdateFile replaces the metadata of a file that was uploaded again.
func (s *FileService) UpdateFile(ctx context.Context, sess *Session, publicID string, req transport.NewFileRequest) (*models.File, error) {
	return s.upsert(ctx, sess, publicID, req, true)
}

func (s *FileService) upsert(ctx context.Context, sess *Session, publicID string, req transport.NewFileRequest, update bool) (*models.File, error) {
	l := logging.FromContext(ctx).With("svc", "files.register", "username", sess.User.Username, "project", publicID, "update", update)

	v, err := transport.ValidateNewFile(req)
	if err != nil {
		return nil, err
	}
	now := s.Clock.Now()

	var (
		file  *models.File
		total int64
	)
	err = s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		p, err := authorizedProject(ctx, tx, sess, publicID, access.UploadFile, true)
		if err != nil {
			return err
		}
		existing, err := tx.GetFile(ctx, p.ID, v.Name)
		switch {
		case err != nil && !isNotFound(err):
			return err
		case err == nil && !update:
			return errs.Validation("File '%s' already exists in the project", v.Name)
		case err != nil && update:
			return errs.NotFound("File '%s' does not exist in the project", v.Name)
		}

		f := existing
		if f == nil {
			f = &models.File{ProjectID: p.ID, Name: v.Name}
		}
		f.NameInBucket = v.NameInBucket
		f.Subpath = v.Subpath
		f.SizeOriginal = v.Size
		f.SizeStored = v.SizeProcessed
		f.Compressed = v.Compressed
		f.PublicKey = v.PublicKey
		f.Salt = v.Salt
		f.Checksum = v.Checksum
		f.DateUploaded = now

		if update {
			err = tx.SaveFile(ctx, f)
		} else {
			err = tx.CreateFile(ctx, f)
		}
		if err != nil {
			return err
		}
		total, _, err = tx.RecomputeProjectSize(ctx, p.ID, now)
		if err != nil {
			return err
		}
		file = f
		return nil
	})
	if err != nil {
		l.Warn("register_file_failed", "file", v.Name, "error", err)
		return nil, internal("register file", err)
	}

	l.Info("file_registered", "file", file.Name, "project_size", total)
	action := "file_added"
	if update {
		action = "file_updated"
	}
	publish(ctx, s.Events, ActionEvent{Action: action, Username: sess.User.Username, Project: publicID, Detail: map[string]any{"file": file.Name}, At: now})
	return file, nil
}

// MatchFiles returns the subset of names already present in the project.
func (s *FileService) MatchFiles(ctx context.Context, sess *Session, publicID string, names []string) ([]string, error) {
	p, err := authorizedProject(ctx, s.Repo, sess, publicID, access.UploadFile, false)
	if err != nil {
		return nil, err
	}
	files, err := s.Repo.FilesByNames(ctx, p.ID, names)
	if err != nil {
		return nil, internal("match files", err)
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Name)
	}
	return out, nil
}

// ListFiles lists the files directly in folder and its immediate
// subfolders. An empty folder means the project root.
func (s *FileService) ListFiles(ctx context.Context, sess *Session, publicID, folder string) (*transport.ListFilesResponse, error) {
	p, err := authorizedProject(ctx, s.Repo, sess, publicID, access.ReadProject, false)
	if err != nil {
		return nil, err
	}
	folder = strings.Trim(folder, "/")

	var files []models.File
	if folder == "" {
		files, err = s.Repo.AllFiles(ctx, p.ID)
	} else {
		files, err = s.Repo.FilesInFolder(ctx, p.ID, folder)
	}
	if err != nil {
		return nil, internal("list files", err)
	}
	if len(files) == 0 {
		if folder == "" {
			return nil, errs.EmptyProject(p.PublicID)
		}
		return nil, errs.NotFound("Could not find the specified folder: %s", folder)
	}

	prefix := ""
	if folder != "" {
		prefix = folder + "/"
	}
	resp := &transport.ListFilesResponse{Files: []string{}, Folders: []string{}}
	seen := map[string]bool{}
	for _, f := range files {
		rest := strings.TrimPrefix(f.Name, prefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			sub := rest[:i]
			if !seen[sub] {
				seen[sub] = true
				resp.Folders = append(resp.Folders, sub)
			}
			continue
		}
		resp.Files = append(resp.Files, rest)
	}
	sort.Strings(resp.Folders)
	return resp, nil
}

// RemoveFiles deletes the named files. Names that do not exist are
// reported back rather than failing the request.
func (s *FileService) RemoveFiles(ctx context.Context, sess *Session, publicID string, names []string) (*transport.RemoveResponse, error) {
	names, err := transport.ValidatePaths(names)
	if err != nil {
		return nil, err
	}
	return s.remove(ctx, sess, publicID, names, func(tx *repo.GormRepo, projectID uint) (map[string][]models.File, error) {
		files, err := tx.FilesByNames(ctx, projectID, names)
		if err != nil {
			return nil, err
		}
		out := make(map[string][]models.File, len(files))
		for _, f := range files {
			out[f.Name] = []models.File{f}
		}
		return out, nil
	})
}

// RemoveFolders deletes every file below each folder.
func (s *FileService) RemoveFolders(ctx context.Context, sess *Session, publicID string, folders []string) (*transport.RemoveResponse, error) {
	folders, err := transport.ValidatePaths(folders)
	if err != nil {
		return nil, err
	}
	return s.remove(ctx, sess, publicID, folders, func(tx *repo.GormRepo, projectID uint) (map[string][]models.File, error) {
		out := make(map[string][]models.File, len(folders))
		for _, folder := range folders {
			files, err := tx.FilesInFolder(ctx, projectID, folder)
			if err != nil {
				return nil, err
			}
			if len(files) > 0 {
				out[folder] = files
			}
		}
		return out, nil
	})
}

type fileLookup func(tx *repo.GormRepo, projectID uint) (map[string][]models.File, error)

func (s *FileService) remove(ctx context.Context, sess *Session, publicID string, requested []string, lookup fileLookup) (*transport.RemoveResponse, error) {
	l := logging.FromContext(ctx).With("svc", "files.remove", "username", sess.User.Username, "project", publicID)
	now := s.Clock.Now()

	resp := &transport.RemoveResponse{NotRemoved: []string{}, NotExists: []string{}}
	var (
		bucket string
		keys   []string
	)
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		p, err := authorizedProject(ctx, tx, sess, publicID, access.DeleteFile, true)
		if err != nil {
			return err
		}
		bucket = p.Bucket

		found, err := lookup(tx, p.ID)
		if err != nil {
			return err
		}
		var ids []uint
		for _, name := range requested {
			files, ok := found[name]
			if !ok {
				resp.NotExists = append(resp.NotExists, name)
				continue
			}
			for _, f := range files {
				ids = append(ids, f.ID)
				keys = append(keys, f.NameInBucket)
			}
		}
		if err := tx.DeleteFiles(ctx, ids); err != nil {
			return err
		}
		_, _, err = tx.RecomputeProjectSize(ctx, p.ID, now)
		return err
	})
	if err != nil {
		l.Warn("remove_failed", "error", err)
		return nil, internal("remove files", err)
	}

	if err := s.Storage.RemoveObjects(ctx, bucket, keys); err != nil {
		l.Warn("object_cleanup_failed", "bucket", bucket, "count", len(keys), "error", err)
	}
	l.Info("files_removed", "count", len(keys), "not_found", len(resp.NotExists))
	publish(ctx, s.Events, ActionEvent{Action: "files_removed", Username: sess.User.Username, Project: publicID, Detail: map[string]any{"count": len(keys)}, At: now})
	return resp, nil
}

// FetchProjectContents resolves requested paths: exact file names first,
// then leftovers as folder prefixes. Paths matching neither are reported
// as not found. With URL set each file gets a presigned download URL and
// its latest download time is stamped.
func (s *FileService) FetchProjectContents(ctx context.Context, sess *Session, publicID string, req transport.ContentsRequest) (*transport.ContentsResponse, error) {
	l := logging.FromContext(ctx).With("svc", "files.contents", "username", sess.User.Username, "project", publicID)

	action := access.ReadProject
	if req.URL {
		action = access.DownloadFile
	}
	p, err := authorizedProject(ctx, s.Repo, sess, publicID, action, false)
	if err != nil {
		return nil, err
	}
	n, err := s.Repo.CountFiles(ctx, p.ID)
	if err != nil {
		return nil, internal("count files", err)
	}
	if n == 0 {
		return nil, errs.EmptyProject(p.PublicID)
	}

	resp := &transport.ContentsResponse{
		Files:    map[string]transport.FileInfo{},
		Folders:  map[string]map[string]transport.FileInfo{},
		NotFound: []string{},
	}

	var touched []uint
	info := func(f models.File) (transport.FileInfo, error) {
		fi := transport.FileInfo{
			NameInBucket: f.NameInBucket,
			Subpath:      f.Subpath,
			SizeOriginal: f.SizeOriginal,
			SizeStored:   f.SizeStored,
			Compressed:   f.Compressed,
			PublicKey:    f.PublicKey,
			Salt:         f.Salt,
			Checksum:     f.Checksum,
		}
		if req.URL {
			u, err := s.Storage.GenerateDownloadURL(ctx, p.Bucket, f.NameInBucket)
			if err != nil {
				return fi, err
			}
			fi.URL = u
			touched = append(touched, f.ID)
		}
		return fi, nil
	}

	switch {
	case len(req.Paths) > 0:
		paths, err := transport.ValidatePaths(req.Paths)
		if err != nil {
			return nil, err
		}
		files, err := s.Repo.FilesByNames(ctx, p.ID, paths)
		if err != nil {
			return nil, internal("find files", err)
		}
		for _, f := range files {
			if resp.Files[f.Name], err = info(f); err != nil {
				return nil, err
			}
		}
		for _, path := range paths {
			if _, ok := resp.Files[path]; ok {
				continue
			}
			inFolder, err := s.Repo.FilesInFolder(ctx, p.ID, path)
			if err != nil {
				return nil, internal("find folder", err)
			}
			if len(inFolder) == 0 {
				resp.NotFound = append(resp.NotFound, path)
				continue
			}
			group := make(map[string]transport.FileInfo, len(inFolder))
			for _, f := range inFolder {
				if group[f.Name], err = info(f); err != nil {
					return nil, err
				}
			}
			resp.Folders[path] = group
		}
	case req.All:
		files, err := s.Repo.AllFiles(ctx, p.ID)
		if err != nil {
			return nil, internal("all files", err)
		}
		for _, f := range files {
			if resp.Files[f.Name], err = info(f); err != nil {
				return nil, err
			}
		}
	default:
		return nil, errs.Validation("No items were requested")
	}

	if len(touched) > 0 {
		if err := s.Repo.MarkDownloaded(ctx, touched, s.Clock.Now()); err != nil {
			return nil, internal("mark downloaded", err)
		}
		publish(ctx, s.Events, ActionEvent{Action: "download_urls_issued", Username: sess.User.Username, Project: publicID, Detail: map[string]any{"count": len(touched)}, At: s.Clock.Now()})
	}
	l.Info("contents_listed", "files", len(resp.Files), "folders", len(resp.Folders), "not_found", len(resp.NotFound))
	return resp, nil
}

// UploadURL makes sure the project bucket exists and presigns a PUT for
// key.
func (s *FileService) UploadURL(ctx context.Context, sess *Session, publicID, key string) (string, error) {
	if key == "" {
		return "", errs.Validation("Object name required")
	}
	p, err := authorizedProject(ctx, s.Repo, sess, publicID, access.UploadFile, false)
	if err != nil {
		return "", err
	}
	if err := s.Storage.EnsureBucket(ctx, p.Bucket); err != nil {
		return "", err
	}
	return s.Storage.GenerateUploadURL(ctx, p.Bucket, key)
}

// Usage reports GB-hours stored per project of the caller's unit, counted
// from each file's upload time.
func (s *FileService) Usage(ctx context.Context, sess *Session) (*transport.UsageResponse, error) {
	if err := access.Authorize(sess.Principal, access.ViewUsage, access.Resource{}).Err(); err != nil {
		return nil, err
	}
	projects, err := s.Repo.ListUnitProjects(ctx, *sess.Principal.UnitID)
	if err != nil {
		return nil, internal("list projects", err)
	}
	now := s.Clock.Now()
	resp := &transport.UsageResponse{Projects: []transport.UsageProject{}}
	for _, p := range projects {
		files, err := s.Repo.AllFiles(ctx, p.ID)
		if err != nil {
			return nil, internal("list files", err)
		}
		var gbh float64
		for _, f := range files {
			hours := now.Sub(f.DateUploaded).Hours()
			if hours < 0 {
				hours = 0
			}
			gbh += float64(f.SizeStored) / 1e9 * hours
		}
		resp.Projects = append(resp.Projects, transport.UsageProject{ProjectID: p.PublicID, GBHours: gbh})
		resp.TotalGBHours += gbh
	}
	return resp, nil
}
