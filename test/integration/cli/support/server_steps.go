package support

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/imas/internal/config"
	"github.com/MeKo-Tech/imas/internal/server"
)

// HTTPTestServerWrapper wraps an httptest.Server around the real handlers.
type HTTPTestServerWrapper struct {
	Server     *httptest.Server
	TestServer *server.Server
}

// startServer runs the matching server on the native view only so the
// scenarios stay fast.
func (testCtx *TestContext) startServer(overlay bool) error {
	if testCtx.HTTPTestServer != nil {
		testCtx.stopTestHTTPServer()
	}
	cfg := config.DefaultConfig()
	cfg.Plan.MaxTilt = 1
	cfg.Filter.Method = "none"
	cfg.Matching.Seed = 1
	pCfg, err := cfg.ToPipelineConfig()
	if err != nil {
		return err
	}
	srv, err := server.NewServer(server.Config{
		Host:           "localhost",
		CORSOrigin:     "*",
		MaxUploadMB:    10,
		TimeoutSec:     60,
		PipelineConfig: pCfg,
		OverlayEnabled: overlay,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)
	testCtx.HTTPTestServer = &HTTPTestServerWrapper{
		Server:     httptest.NewServer(mux),
		TestServer: srv,
	}
	return nil
}

func (testCtx *TestContext) stopTestHTTPServer() {
	testCtx.HTTPTestServer.Server.Close()
	testCtx.HTTPTestServer = nil
}

func (testCtx *TestContext) theMatchingServerIsRunning() error {
	return testCtx.startServer(true)
}

func (testCtx *TestContext) theMatchingServerIsRunningWithOverlayDisabled() error {
	return testCtx.startServer(false)
}

func (testCtx *TestContext) baseURL() (string, error) {
	if testCtx.HTTPTestServer == nil {
		return "", errors.New("server is not running")
	}
	return testCtx.HTTPTestServer.Server.URL, nil
}

// do sends req and stores the response.
func (testCtx *TestContext) do(req *http.Request) error {
	client := &http.Client{Timeout: commandTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	testCtx.LastHTTPHeaders = map[string]string{}
	for k := range resp.Header {
		testCtx.LastHTTPHeaders[k] = resp.Header.Get(k)
	}
	return nil
}

func (testCtx *TestContext) iGET(path string) error {
	base, err := testCtx.baseURL()
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodGet, base+path, nil)
	if err != nil {
		return err
	}
	return testCtx.do(req)
}

// upload posts the named images as multipart fields.
func (testCtx *TestContext) upload(path string, fields map[string]string, format string) error {
	base, err := testCtx.baseURL()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for field, name := range fields {
		file, ok := testCtx.Images[name]
		if !ok {
			return fmt.Errorf("unknown image %q", name)
		}
		data, err := os.ReadFile(file) //nolint:gosec // G304: generated test image
		if err != nil {
			return err
		}
		part, err := writer.CreateFormFile(field, filepath.Base(file))
		if err != nil {
			return err
		}
		if _, err := part.Write(data); err != nil {
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}

	url := base + path
	if format != "" {
		url += "?format=" + format
	}
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return testCtx.do(req)
}

func (testCtx *TestContext) iUploadPairTo(a, b, path string) error {
	return testCtx.upload(path, map[string]string{"image1": a, "image2": b}, "")
}

func (testCtx *TestContext) iUploadPairToWithFormat(a, b, path, format string) error {
	return testCtx.upload(path, map[string]string{"image1": a, "image2": b}, format)
}

func (testCtx *TestContext) iUploadPairWithBackgroundTo(a, b, bg, path string) error {
	return testCtx.upload(path, map[string]string{"image1": a, "image2": b, "background": bg}, "")
}

func (testCtx *TestContext) iUploadImageTo(name, path string) error {
	return testCtx.upload(path, map[string]string{"image": name}, "")
}

func (testCtx *TestContext) theResponseStatusShouldBe(status int) error {
	if testCtx.LastHTTPStatusCode != status {
		return fmt.Errorf("status %d, want %d\nBody: %s", testCtx.LastHTTPStatusCode, status, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseJSONShouldContain(field string) error {
	var data map[string]any
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &data); err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	return checkFieldExists(data, field)
}

func (testCtx *TestContext) theResponseJSONFieldShouldBe(field, want string) error {
	var data map[string]any
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &data); err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	if got := fmt.Sprint(data[field]); got != want {
		return fmt.Errorf("field %s is %q, want %q", field, got, want)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(text string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, text) {
		return fmt.Errorf("response does not contain %q\nBody: %s", text, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, want string) error {
	if got := testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)]; got != want {
		return fmt.Errorf("header %s is %q, want %q", name, got, want)
	}
	return nil
}

// RegisterServerSteps registers the HTTP API steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the matching server is running$`, testCtx.theMatchingServerIsRunning)
	sc.Step(`^the matching server is running with overlay disabled$`, testCtx.theMatchingServerIsRunningWithOverlayDisabled)
	sc.Step(`^I GET "([^"]*)"$`, testCtx.iGET)
	sc.Step(`^I upload "([^"]*)" and "([^"]*)" to "([^"]*)"$`, testCtx.iUploadPairTo)
	sc.Step(`^I upload "([^"]*)" and "([^"]*)" to "([^"]*)" with format "([^"]*)"$`, testCtx.iUploadPairToWithFormat)
	sc.Step(`^I upload "([^"]*)" and "([^"]*)" with background "([^"]*)" to "([^"]*)"$`,
		testCtx.iUploadPairWithBackgroundTo)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)"$`, testCtx.iUploadImageTo)

	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response JSON should contain "([^"]*)"$`, testCtx.theResponseJSONShouldContain)
	sc.Step(`^the response JSON field "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseJSONFieldShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
}

