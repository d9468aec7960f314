package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/kalamu/apps/api/echo"
	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/flashcard"
	"github.com/trezcool/kalamu/core/lecture"
	"github.com/trezcool/kalamu/core/note"
	"github.com/trezcool/kalamu/core/progress"
	"github.com/trezcool/kalamu/core/quota"
	"github.com/trezcool/kalamu/core/reference"
	"github.com/trezcool/kalamu/core/user"
	aisvc "github.com/trezcool/kalamu/services/ai"
	emailsvc "github.com/trezcool/kalamu/services/email"
	sqlxrepos "github.com/trezcool/kalamu/storage/database/sqlx"
	testutil "github.com/trezcool/kalamu/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type fixture struct {
	app      *echoapi.Server
	conf     *core.Config
	usrRepo  user.Repository
	noteRepo note.Repository
	fcRepo   flashcard.Repository
	quota    quota.Service
	tracker  *progress.Tracker
	outbox   *emailsvc.Outbox
}

type fakeExtractor struct {
	doc core.ExtractedDocument
}

func (f fakeExtractor) Extract(context.Context, []byte) (core.ExtractedDocument, error) {
	return f.doc, nil
}

type fakeConverter struct{}

func (fakeConverter) ConvertToPDF(context.Context, string, []byte) ([]byte, error) {
	return []byte("%PDF-1.7 converted"), nil
}

type setupOption func(*setupOptions)

type setupOptions struct {
	ai        core.AIService
	converter core.PDFConverter
}

func withAI(ai core.AIService) setupOption {
	return func(o *setupOptions) { o.ai = ai }
}

func withConverter() setupOption {
	return func(o *setupOptions) { o.converter = fakeConverter{} }
}

func setup(t *testing.T, opts ...setupOption) *fixture {
	t.Helper()
	o := setupOptions{ai: aisvc.Fake()}
	for _, opt := range opts {
		opt(&o)
	}

	conf := testutil.NewConfig()
	logger := testutil.NewLogger()
	validate, translator := testutil.NewValidator()
	core.ParseEmailTemplates(conf, logger)

	// set up DB & repos
	db := testutil.PrepareDB(t)
	f := &fixture{
		conf:     conf,
		usrRepo:  sqlxrepos.NewUserRepository(db),
		noteRepo: sqlxrepos.NewNoteRepository(db),
		fcRepo:   sqlxrepos.NewFlashcardRepository(db),
		tracker:  progress.NewTracker(),
	}

	// set up services
	var mailSvc core.EmailService
	mailSvc, f.outbox = emailsvc.NewConsoleServiceMock(logger, conf)
	f.quota = quota.NewService(sqlxrepos.NewUsageRepository(db), nil)
	usrSvc := user.NewServiceMock(f.usrRepo, mailSvc, conf)
	noteSvc := note.NewService(db, f.noteRepo, nil, logger)
	fcSvc := flashcard.NewService(db, f.fcRepo, noteSvc, o.ai, f.quota, logger, conf)
	refSvc := reference.NewService(db, sqlxrepos.NewReferenceRepository(db), noteSvc, o.ai, f.quota, logger, conf)
	extractor := fakeExtractor{doc: core.ExtractedDocument{
		PageCount: 2,
		Pages:     []string{"Entropy always increases", "Energy is conserved"},
	}}
	lectureSvc := lecture.NewService(noteSvc, o.converter, extractor, o.ai, f.quota, f.tracker, mailSvc, logger, conf)

	// set up server
	f.app = echoapi.NewServer(echoapi.ServerDeps{
		Conf:         conf,
		Logger:       logger,
		Validate:     validate,
		Translator:   translator,
		UserSvc:      usrSvc,
		NoteSvc:      noteSvc,
		FlashcardSvc: fcSvc,
		ReferenceSvc: refSvc,
		LectureSvc:   lectureSvc,
		QuotaSvc:     f.quota,
		Tracker:      f.tracker,
		Converter:    o.converter,
	})
	return f
}

func (f *fixture) serve(req *http.Request, rec *httptest.ResponseRecorder) {
	f.app.ServeHTTP(rec, req)
}

func (f *fixture) createUser(t *testing.T, uname string, plan quota.Plan) user.User {
	return testutil.CreateUser(t, f.usrRepo, uname, uname, uname+"@test.cd", "", plan, true)
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newUploadRequest builds a multipart request carrying filename and the extra form fields.
func newUploadRequest(t *testing.T, path, token, filename string, content []byte, fields map[string]string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	token, err := echoapi.GenerateToken(conf, usr)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
