package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/hed1ad/fraudshield/pkg/cache"
	"github.com/hed1ad/fraudshield/pkg/features"
	"github.com/hed1ad/fraudshield/pkg/intake"
	fsio "github.com/hed1ad/fraudshield/pkg/io"
	"github.com/hed1ad/fraudshield/pkg/io/csv"
	"github.com/hed1ad/fraudshield/pkg/metrics"
	"github.com/hed1ad/fraudshield/pkg/pipeline"
)

const (
	predictPath  = "/predict"
	downloadPath = "/predict/download"

	uploadField      = "file"
	downloadFilename = "fraud_detection_results.csv"

	contentTypeJSON = "application/json; charset=utf-8"
	contentTypeCSV  = "text/csv; charset=utf-8"
)

// httpError is an error with a status code and client-facing detail.
type httpError struct {
	status  int
	detail  string
	missing []string
	outcome string
	cause   error
}

func (e *httpError) Error() string {
	if e.cause != nil {
		return e.detail + ": " + e.cause.Error()
	}
	return e.detail
}

func badRequest(detail string, cause error) *httpError {
	return &httpError{status: http.StatusBadRequest, detail: detail, cause: cause}
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "FraudShield API is running"})
}

func (s *Server) predictHandler(c *gin.Context) {
	s.serve(c, predictPath, contentTypeJSON, func(res *pipeline.Result) ([]byte, error) {
		return json.Marshal(fsio.NewReport(res))
	})
}

func (s *Server) downloadHandler(c *gin.Context) {
	c.Header("Content-Disposition", "attachment; filename="+downloadFilename)
	s.serve(c, downloadPath, contentTypeCSV, func(res *pipeline.Result) ([]byte, error) {
		var buf bytes.Buffer
		if err := csv.NewWriter(&buf).Write(res); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	})
}

// serve runs the shared upload, intake, scoring and caching path and writes
// the encoded result.
func (s *Server) serve(c *gin.Context, endpoint, contentType string, encode func(*pipeline.Result) ([]byte, error)) {
	body, err := s.readUpload(c)
	if err != nil {
		s.fail(c, endpoint, err)
		return
	}

	var key string
	if s.cache != nil {
		key = cache.Key(s.fingerprint, endpoint, body)
		cached, ok, err := s.cache.Get(c.Request.Context(), key)
		if err != nil {
			requestLogger(c).WithError(err).Warn("cache lookup failed")
		}
		s.metrics.CacheLookup(ok)
		if ok {
			s.metrics.Outcome(endpoint, metrics.OutcomeCached)
			c.Data(http.StatusOK, contentType, cached)
			return
		}
	}

	start := time.Now()
	res, err := s.score(body)
	if err != nil {
		s.fail(c, endpoint, err)
		return
	}
	s.metrics.Scored(endpoint, res.Summary, time.Since(start))

	out, err := encode(res)
	if err != nil {
		s.fail(c, endpoint, errors.Wrap(err, "error encoding result"))
		return
	}

	if s.cache != nil {
		if err := s.cache.Set(c.Request.Context(), key, out); err != nil {
			requestLogger(c).WithError(err).Warn("cache store failed")
		}
	}

	requestLogger(c).WithField("summary", res.Summary).Debug("batch served")
	c.Data(http.StatusOK, contentType, out)
}

func (s *Server) score(body []byte) (*pipeline.Result, error) {
	raw, err := csv.NewReader(bytes.NewReader(body)).Read()
	if err != nil {
		return nil, badRequest("Invalid CSV", err)
	}

	t, err := intake.Sanitize(raw)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Run(t)
}

// readUpload returns the bytes of the uploaded CSV file.
func (s *Server) readUpload(c *gin.Context) ([]byte, error) {
	if s.cfg.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)
	}

	fh, err := c.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &httpError{status: http.StatusRequestEntityTooLarge, detail: "Uploaded file is too large", cause: err}
		}
		return nil, badRequest("A CSV file is required in the \"file\" form field", err)
	}
	if !strings.HasSuffix(fh.Filename, ".csv") {
		return nil, &httpError{status: http.StatusBadRequest, detail: "Only CSV files are supported", outcome: metrics.OutcomeUnsupported}
	}

	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrap(err, "error opening upload")
	}
	defer f.Close()

	body, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "error reading upload")
	}
	return body, nil
}

// fail maps err onto the error envelope.
func (s *Server) fail(c *gin.Context, endpoint string, err error) {
	he := classify(err)

	outcome := he.outcome
	switch {
	case outcome != "":
	case he.status >= http.StatusInternalServerError:
		outcome = metrics.OutcomeFailed
	default:
		outcome = metrics.OutcomeRejected
	}
	s.metrics.Outcome(endpoint, outcome)

	_ = c.Error(err)
	// error responses carry no attachment
	c.Writer.Header().Del("Content-Disposition")

	body := gin.H{"detail": he.detail}
	if he.missing != nil {
		body["missing_columns"] = he.missing
	}
	c.AbortWithStatusJSON(he.status, body)
}

func classify(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	var schemaErr *features.SchemaError
	switch {
	case errors.As(err, &schemaErr):
		return &httpError{
			status:  http.StatusBadRequest,
			detail:  "Missing required columns: " + pyList(schemaErr.Missing),
			missing: schemaErr.Missing,
		}
	case errors.Is(err, intake.ErrEmptyUpload):
		return badRequest("Uploaded CSV is empty", nil)
	case errors.Is(err, intake.ErrMissingValues):
		return badRequest("CSV contains missing values (NaN)", nil)
	default:
		return &httpError{status: http.StatusInternalServerError, detail: err.Error()}
	}
}

// pyList renders names as ['a', 'b'], the form clients of this API expect.
func pyList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
