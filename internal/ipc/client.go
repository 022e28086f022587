package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, client: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		// closes conn as well
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartResponse](c, "Start", StartRequest{})
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Stop", StopRequest{})
}

// Status retrieves the daemon status, optionally with preflight checks.
func (c *Client) Status(withChecks bool) (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{WithChecks: withChecks})
}

// Submit enqueues a job.
func (c *Client) Submit(req SubmitRequest) (*SubmitResponse, error) {
	return call[SubmitResponse](c, "Submit", req)
}

// JobStatus returns the status of one job.
func (c *Client) JobStatus(id string) (*JobStatusResponse, error) {
	return call[JobStatusResponse](c, "JobStatus", JobStatusRequest{ID: id})
}

// JobList returns recent jobs, optionally filtered by status.
func (c *Client) JobList(statuses []string, limit int) (*JobListResponse, error) {
	return call[JobListResponse](c, "JobList", JobListRequest{Statuses: statuses, Limit: limit})
}

// Cancel requests cancellation of a job.
func (c *Client) Cancel(id string) (*CancelResponse, error) {
	return call[CancelResponse](c, "Cancel", CancelRequest{ID: id})
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailResponse](c, "LogTail", req)
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	return call[DatabaseHealthResponse](c, "DatabaseHealth", DatabaseHealthRequest{})
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
