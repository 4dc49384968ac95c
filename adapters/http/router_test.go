package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/khoahotran/tagvault/adapters/inmemory"
	"github.com/khoahotran/tagvault/internal/application/service"
	authUC "github.com/khoahotran/tagvault/internal/application/usecase/auth"
	"github.com/khoahotran/tagvault/internal/application/usecase/backup"
	"github.com/khoahotran/tagvault/internal/application/usecase/export"
	historyUC "github.com/khoahotran/tagvault/internal/application/usecase/history"
	"github.com/khoahotran/tagvault/internal/application/usecase/jobs"
	reconcileUC "github.com/khoahotran/tagvault/internal/application/usecase/reconcile"
	"github.com/khoahotran/tagvault/internal/application/usecase/restore"
	"github.com/khoahotran/tagvault/internal/config"
	"github.com/khoahotran/tagvault/internal/domain/taxonomy"
	"github.com/khoahotran/tagvault/internal/domain/user"
	"github.com/khoahotran/tagvault/pkg/apperror"
	"github.com/khoahotran/tagvault/pkg/auth"
	"github.com/khoahotran/tagvault/pkg/logger"
)

type memUserRepo struct {
	users map[string]*user.User
}

func (r *memUserRepo) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	u, ok := r.users[email]
	if !ok {
		return nil, apperror.NewNotFound("operator", email)
	}
	return u, nil
}

func (r *memUserRepo) Upsert(ctx context.Context, u *user.User) error {
	r.users[u.Email] = u
	return nil
}

func (r *memUserRepo) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	for _, u := range r.users {
		if u.ID == id {
			u.LastLoginAt = &at
			return nil
		}
	}
	return apperror.NewNotFound("operator", id.String())
}

type memQueue struct {
	jobs []service.Job
}

func (q *memQueue) EnqueueJob(ctx context.Context, job service.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

type RouterTestSuite struct {
	suite.Suite
	router *gin.Engine
	dialer *inmemory.Dialer
	queue  *memQueue
	token  string
}

func (s *RouterTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	log := logger.NewNopLogger()

	var cfg config.Config
	cfg.VCenter.Server = "vc01.lab"
	cfg.Restore.LockTTL = time.Minute
	cfg.Export.SystemCategoryPrefix = "vSphere"

	hash, err := auth.HashPassword("s3cret")
	s.Require().NoError(err)
	users := &memUserRepo{users: map[string]*user.User{
		"ops@example.com": {ID: uuid.New(), Email: "ops@example.com", PasswordHash: hash},
	}}
	jwtSvc := auth.NewJWTService("router-test", time.Hour)

	s.dialer = inmemory.NewDialer("vc01.lab")
	s.dialer.Store("vc01.lab").Seed(
		[]taxonomy.Category{
			{Name: "App", Cardinality: taxonomy.CardinalitySingle, EntityTypes: []string{"VirtualMachine"}},
			{Name: "vSphere Replication"},
		},
		[]taxonomy.Tag{{Name: "Finance", CategoryName: "App"}},
	)
	repo := inmemory.NewHistoryRepo()
	s.queue = &memQueue{}

	backupUseCase := backup.NewBackupUseCase(cfg, s.dialer, export.NewExporter(log), repo, nil, nil, log)
	restoreUseCase := restore.NewRestoreUseCase(cfg, s.dialer, reconcileUC.NewEngine(log), repo, inmemory.NewLocker(), nil, log)

	s.router = NewRouter(Handlers{
		Auth:     NewAuthHandler(authUC.NewLoginUseCase(users, jwtSvc, log), log),
		Taxonomy: NewTaxonomyHandler(backupUseCase, restoreUseCase, historyUC.NewHistoryUseCase(repo, log), log),
		Jobs:     NewJobHandler(jobs.NewEnqueueJobUseCase(s.queue, log)),
		RSS:      NewRSSHandler(historyUC.NewRSSUseCase(repo, "http://tagvault.local", log), log),
	}, jwtSvc, log)

	rr := s.do(http.MethodPost, "/api/admin/auth/login", gin.H{"email": "ops@example.com", "password": "s3cret"}, false)
	s.Require().Equal(http.StatusOK, rr.Code)
	var login map[string]string
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &login))
	s.token = login["access_token"]
}

func TestRouter(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}

func (s *RouterTestSuite) do(method, path string, body any, authed bool) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func (s *RouterTestSuite) Test_Health() {
	rr := s.do(http.MethodGet, "/api/health", nil, false)
	s.Equal(http.StatusOK, rr.Code)
}

func (s *RouterTestSuite) Test_PrivateRoutesRequireToken() {
	rr := s.do(http.MethodGet, "/api/admin/snapshots", nil, false)
	s.Equal(http.StatusUnauthorized, rr.Code)

	rr = s.do(http.MethodPost, "/api/admin/auth/login", gin.H{"email": "ops@example.com", "password": "nope"}, false)
	s.Equal(http.StatusUnauthorized, rr.Code)
}

func (s *RouterTestSuite) Test_LoginReportsPreviousLogin() {
	rr := s.do(http.MethodPost, "/api/admin/auth/login", gin.H{"email": "ops@example.com", "password": "s3cret"}, false)
	s.Require().Equal(http.StatusOK, rr.Code)
	var login struct {
		OperatorID  string     `json:"operator_id"`
		LastLoginAt *time.Time `json:"last_login_at"`
	}
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &login))
	s.NotEmpty(login.OperatorID)
	s.Require().NotNil(login.LastLoginAt)
	s.WithinDuration(time.Now(), *login.LastLoginAt, time.Minute)
}

func (s *RouterTestSuite) Test_ExportThenRestoreThroughArchive() {
	rr := s.do(http.MethodPost, "/api/admin/exports", gin.H{"exclude_system_categories": true}, true)
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	var exported ExportResponse
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &exported))
	s.Equal(1, exported.CategoryCount)
	s.Equal(1, exported.TagCount)
	s.Equal("vc01.lab", exported.SourceServer)

	rr = s.do(http.MethodGet, "/api/admin/snapshots", nil, true)
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), exported.SnapshotID.String())

	rr = s.do(http.MethodGet, "/api/admin/snapshots/"+exported.SnapshotID.String(), nil, true)
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), `"TagCategories"`)

	rr = s.do(http.MethodGet, "/api/admin/snapshots/"+exported.SnapshotID.String()+"?format=yaml", nil, true)
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), "TagCategories:")

	rr = s.do(http.MethodPost, "/api/admin/restores", gin.H{"server": "vc02.lab", "snapshot_id": exported.SnapshotID}, true)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	var restored RestoreResponse
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &restored))
	s.Equal(0, restored.ExitCode)
	s.Equal(1, restored.Report.Categories.Created)
	s.Equal(1, restored.Report.Tags.Created)

	_, ok := s.dialer.Store("vc02.lab").Tag("Finance", "App")
	s.True(ok)

	rr = s.do(http.MethodGet, "/api/admin/runs", nil, true)
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), restored.RunID.String())

	rr = s.do(http.MethodGet, "/api/runs/feed", nil, false)
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), "<rss")
	s.Contains(rr.Body.String(), "vc02.lab")
}

func (s *RouterTestSuite) Test_InlineDryRunRestore() {
	doc := json.RawMessage(`{"TagCategories":[{"Name":"Env","Cardinality":"MULTIPLE"}],"Tags":[{"Name":"Prod","CategoryName":"Env"}]}`)
	rr := s.do(http.MethodPost, "/api/admin/restores", gin.H{"server": "vc03.lab", "snapshot": doc, "dry_run": true}, true)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())

	var restored RestoreResponse
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &restored))
	s.True(restored.Report.DryRun)
	s.Equal(1, restored.Report.Categories.Created)
	s.Equal(1, restored.Report.Tags.Failed)
	s.Equal(1, restored.ExitCode)
	s.Equal(0, s.dialer.Store("vc03.lab").Mutations())
}

func (s *RouterTestSuite) Test_RestoreRejectsBadInput() {
	rr := s.do(http.MethodPost, "/api/admin/restores", gin.H{"snapshot": json.RawMessage(`{"Tags":[]}`)}, true)
	s.Equal(http.StatusBadRequest, rr.Code)

	rr = s.do(http.MethodPost, "/api/admin/restores", gin.H{}, true)
	s.Equal(http.StatusBadRequest, rr.Code)

	rr = s.do(http.MethodPost, "/api/admin/restores", gin.H{"snapshot_id": uuid.New()}, true)
	s.Equal(http.StatusNotFound, rr.Code)

	rr = s.do(http.MethodGet, "/api/admin/snapshots/not-a-uuid", nil, true)
	s.Equal(http.StatusBadRequest, rr.Code)
}

func (s *RouterTestSuite) Test_SubmitJob() {
	rr := s.do(http.MethodPost, "/api/admin/jobs", gin.H{"type": "export", "export": gin.H{"server": "vc01.lab"}}, true)
	s.Require().Equal(http.StatusAccepted, rr.Code, rr.Body.String())
	s.Require().Len(s.queue.jobs, 1)
	s.Equal(service.JobTypeExport, s.queue.jobs[0].Type)
	s.NotEqual(uuid.Nil, s.queue.jobs[0].RequestedBy)

	rr = s.do(http.MethodPost, "/api/admin/jobs", gin.H{"type": "purge"}, true)
	s.Equal(http.StatusBadRequest, rr.Code)

	rr = s.do(http.MethodPost, "/api/admin/jobs", gin.H{"type": "restore", "restore": gin.H{"server": "vc02"}}, true)
	s.Equal(http.StatusBadRequest, rr.Code)
	s.True(strings.Contains(rr.Body.String(), "error"))
}
