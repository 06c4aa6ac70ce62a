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
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// AddBook imports one EPUB into the library.
func (c *Client) AddBook(path string) (*AddBookResponse, error) {
	var resp AddBookResponse
	if err := c.call("AddBook", AddBookRequest{Path: path}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddBooks imports several EPUBs concurrently.
func (c *Client) AddBooks(paths []string) (*AddBooksResponse, error) {
	var resp AddBooksResponse
	if err := c.call("AddBooks", AddBooksRequest{Paths: paths}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListLibrary returns every book in the library.
func (c *Client) ListLibrary() (*ListLibraryResponse, error) {
	var resp ListLibraryResponse
	if err := c.call("ListLibrary", ListLibraryRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PickFiles returns candidate EPUB paths from the import directory.
func (c *Client) PickFiles() (*PickFilesResponse, error) {
	var resp PickFilesResponse
	if err := c.call("PickFiles", PickFilesRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OpenBook serves a book by path or library key.
func (c *Client) OpenBook(target string) (*OpenBookResponse, error) {
	var resp OpenBookResponse
	if err := c.call("OpenBook", OpenBookRequest{Target: target}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CloseBook stops serving the open book.
func (c *Client) CloseBook() (*CloseBookResponse, error) {
	var resp CloseBookResponse
	if err := c.call("CloseBook", CloseBookRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BookTOC returns a book's table of contents.
func (c *Client) BookTOC(key string) (*BookTOCResponse, error) {
	var resp BookTOCResponse
	if err := c.call("BookTOC", BookTOCRequest{Key: key}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReportLocation stores the reader's location in a book.
func (c *Client) ReportLocation(req ReportLocationRequest) (*ReportLocationResponse, error) {
	var resp ReportLocationResponse
	if err := c.call("ReportLocation", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Progress returns the saved reading location of a book.
func (c *Client) Progress(key string) (*ProgressResponse, error) {
	var resp ProgressResponse
	if err := c.call("Progress", ProgressRequest{Key: key}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop asks the daemon to release its resources and exit.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.call("LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
