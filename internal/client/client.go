// Package client talks to the order desk over HTTP: submitting orders,
// polling their status and, with admin credentials, deciding them.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
	"github.com/wellywell/orderdesk/internal/order"
	"github.com/wellywell/orderdesk/internal/types"
	"github.com/wellywell/orderdesk/internal/validate"
)

const requestTimeout = 10 * time.Second

var (
	ErrInvalid    = errors.New("order rejected as invalid")
	ErrServer     = errors.New("server error")
	ErrMissing    = errors.New("order not found")
	ErrUnexpected = errors.New("unexpected response")
)

type Client struct {
	http *resty.Client
}

type submitResponse struct {
	OK      bool   `json:"ok"`
	OrderID string `json:"order_id"`
	Error   string `json:"error"`
}

func New(baseURL string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(requestTimeout).
		SetHeader("Accept", "application/json")
	return &Client{http: c}
}

// WithAdmin sets the basic-auth credentials used by Act.
func (c *Client) WithAdmin(user, password string) *Client {
	c.http.SetBasicAuth(user, password)
	return c
}

func (c *Client) Submit(ctx context.Context, sub *validate.Submission) (string, error) {
	var result submitResponse
	response, err := c.http.R().
		SetContext(ctx).
		SetBody(sub).
		SetResult(&result).
		SetError(&result).
		Post("/submit")
	if err != nil {
		return "", err
	}

	switch response.StatusCode() {
	case http.StatusOK:
		if !result.OK || result.OrderID == "" {
			return "", fmt.Errorf("%w: %s", ErrUnexpected, response.String())
		}
		return result.OrderID, nil
	case http.StatusBadRequest:
		return "", fmt.Errorf("%w", ErrInvalid)
	case http.StatusInternalServerError:
		return "", fmt.Errorf("%w: %s", ErrServer, result.Error)
	default:
		return "", fmt.Errorf("%w: status %d", ErrUnexpected, response.StatusCode())
	}
}

func (c *Client) Check(ctx context.Context, id string) (*order.StatusView, error) {
	var view order.StatusView
	response, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("id", id).
		SetResult(&view).
		Get("/check")
	if err != nil {
		return nil, err
	}
	if response.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnexpected, response.StatusCode())
	}
	return &view, nil
}

// Act approves or rejects an order. The server redirects to the admin page
// whether or not anything changed.
func (c *Client) Act(ctx context.Context, id string, act types.Action) error {
	response, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"id": id, "act": string(act)}).
		Get("/admin/action")
	if err != nil {
		return err
	}
	switch response.StatusCode() {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: admin credentials refused", ErrUnexpected)
	case http.StatusInternalServerError:
		return fmt.Errorf("%w", ErrServer)
	default:
		return fmt.Errorf("%w: status %d", ErrUnexpected, response.StatusCode())
	}
}

// WaitForDecision polls until the order is approved or rejected, the order
// turns out not to exist, or ctx is done.
func (c *Client) WaitForDecision(ctx context.Context, id string, interval time.Duration) (*order.StatusView, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		view, err := c.Check(ctx, id)
		if err != nil {
			return nil, err
		}
		switch view.Status {
		case string(types.ApprovedStatus), string(types.RejectedStatus):
			return view, nil
		case order.MissingStatus:
			return nil, fmt.Errorf("%w: %s", ErrMissing, id)
		}
		logger.Debugf("Order %s still %s", id, view.Status)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
