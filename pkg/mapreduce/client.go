package mapreduce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paulniziolek/mrjobs/pkg/mapreduce/task"
)

// Client talks to a master over HTTP. It implements Coordinator.
type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Register(ctx context.Context, workerID string) error {
	return c.call(ctx, http.MethodPost, "/workers/register", &RegisterRequest{WorkerID: workerID}, &RegisterResponse{})
}

func (c *Client) NextTask(ctx context.Context, workerID string) (*task.Task, error) {
	reply := &GetTaskResponse{}
	if err := c.call(ctx, http.MethodPost, "/tasks/next", &GetTaskRequest{WorkerID: workerID}, reply); err != nil {
		return nil, err
	}
	return reply.Task, nil
}

func (c *Client) Report(ctx context.Context, taskID string, result ReportRequest) error {
	return c.call(ctx, http.MethodPost, "/tasks/"+url.PathEscape(taskID)+"/result", &result, &ReportResponse{})
}

func (c *Client) CreateJob(ctx context.Context, req CreateJobRequest) (CreateJobResponse, error) {
	var resp CreateJobResponse
	err := c.call(ctx, http.MethodPost, "/jobs", &req, &resp)
	return resp, err
}

func (c *Client) JobStatus(ctx context.Context, jobID string) (JobStatus, error) {
	var st JobStatus
	err := c.call(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, &st)
	return st, err
}

// FetchResult copies the final output of a finished job into w.
func (c *Client) FetchResult(ctx context.Context, jobID string, w io.Writer) error {
	resp, err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID)+"/result", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(w, resp.Body)
	return err
}

// send a request to the master and decode the reply into reply.
func (c *Client) call(ctx context.Context, method, path string, args, reply any) error {
	var body io.Reader
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(reply)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 400 {
		return resp, nil
	}
	defer resp.Body.Close()

	var e ErrorResponse
	json.NewDecoder(resp.Body).Decode(&e)
	return nil, remoteError(resp.StatusCode, path, e.Error)
}

func remoteError(status int, path, msg string) error {
	var sentinel error
	switch {
	case status == http.StatusNotFound && strings.HasPrefix(path, "/tasks/"):
		sentinel = ErrUnknownTask
	case status == http.StatusNotFound:
		sentinel = ErrUnknownJob
	case status == http.StatusConflict:
		sentinel = ErrNotReady
	case status == http.StatusBadRequest:
		sentinel = ErrInvalidJob
	default:
		return fmt.Errorf("%s: status %d: %s", path, status, msg)
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}
