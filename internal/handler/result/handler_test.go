package result

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meditrack/meditrack-api/internal/model"
	"github.com/meditrack/meditrack-api/pkg/errors"
	"github.com/meditrack/meditrack-api/pkg/validator"
)

func TestMain(m *testing.M) {
	if err := validator.RegisterDomainValidations(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeResultService struct {
	submitted *model.LabResult
	submitErr error
	getErr    error
	verified  *model.LabResult
	verifyErr error
}

func (f *fakeResultService) SubmitResult(ctx context.Context, req *model.SubmitResultRequest) (*model.LabResult, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.submitted, nil
}

func (f *fakeResultService) GetResult(ctx context.Context, id uuid.UUID) (*model.LabResult, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.submitted, nil
}

func (f *fakeResultService) GetResultsByOrder(ctx context.Context, orderID uuid.UUID) ([]*model.LabResult, error) {
	return []*model.LabResult{f.submitted}, nil
}

func (f *fakeResultService) GetCriticalResults(ctx context.Context) ([]*model.LabResult, error) {
	return []*model.LabResult{f.submitted}, nil
}

func (f *fakeResultService) VerifyResult(ctx context.Context, id uuid.UUID, verifiedBy string) (*model.LabResult, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.verified, nil
}

func setupRouter(svc *fakeResultService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func sampleResult() *model.LabResult {
	return model.NewLabResult(uuid.New(), model.ResultSpec{
		TestCode:     "CBC",
		ResultValue:  "4.2",
		AbnormalFlag: model.FlagNormal,
		PerformedBy:  "tech-1",
	})
}

func submitBody(t *testing.T, orderID string) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"order_id":      orderID,
		"test_code":     "CBC",
		"result_value":  "4.2",
		"abnormal_flag": "NORMAL",
		"performed_by":  "tech-1",
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestSubmitResultEndpoint(t *testing.T) {
	svc := &fakeResultService{submitted: sampleResult()}
	r := setupRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/lab/results", submitBody(t, uuid.New().String()))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		Status string          `json:"status"`
		Data   model.LabResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "CBC", resp.Data.TestCode)
}

func TestSubmitResultMissingFields(t *testing.T) {
	r := setupRouter(&fakeResultService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/lab/results", bytes.NewBufferString(`{"order_id":"not-a-uuid"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitResultConflictMapsTo409(t *testing.T) {
	svc := &fakeResultService{submitErr: errors.Conflict("cannot submit results for cancelled order", model.ErrOrderCancelled)}
	r := setupRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/lab/results", submitBody(t, uuid.New().String()))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSubmitResultNotFoundMapsTo404(t *testing.T) {
	svc := &fakeResultService{submitErr: errors.NotFound("lab order", model.ErrOrderNotFound)}
	r := setupRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/lab/results", submitBody(t, uuid.New().String()))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetResultInvalidID(t *testing.T) {
	r := setupRouter(&fakeResultService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/lab/results/not-a-uuid", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetCriticalResults(t *testing.T) {
	svc := &fakeResultService{submitted: sampleResult()}
	r := setupRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/lab/results/critical", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVerifyResultEndpoint(t *testing.T) {
	verified := sampleResult()
	require.NoError(t, verified.Verify("dr-house"))
	svc := &fakeResultService{verified: verified}
	r := setupRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/lab/results/"+uuid.New().String()+"/verify", bytes.NewBufferString(`{"verified_by":"dr-house"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
