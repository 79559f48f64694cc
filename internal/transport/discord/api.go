package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultAPIBase        = "https://discord.com/api/v10"
	DefaultRequestTimeout = 15 * time.Second

	maxRateLimitRetries = 3
	maxRateLimitWait    = 30 * time.Second
)

// APIError is a non-2xx Discord response.
type APIError struct {
	HTTPStatus int
	Code       int
	Message    string
	// RetryAfter is set on 429 responses.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("discord: http %d", e.HTTPStatus)
	}
	return fmt.Sprintf("discord: http %d (code %d): %s", e.HTTPStatus, e.Code, e.Message)
}

type errorBody struct {
	Code       int     `json:"code"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
}

type apiGuild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// channel types
const (
	channelText         = 0
	channelAnnouncement = 5
)

type apiChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type int    `json:"type"`
}

type apiRole struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type embedFooter struct {
	Text    string `json:"text,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

type embedAuthor struct {
	Name    string `json:"name,omitempty"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

type embedImage struct {
	URL string `json:"url"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
	Thumbnail   *embedImage  `json:"thumbnail,omitempty"`
	Author      *embedAuthor `json:"author,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
}

type allowedMentions struct {
	Parse []string `json:"parse"`
	Roles []string `json:"roles,omitempty"`
}

type createMessage struct {
	Content         string          `json:"content,omitempty"`
	Embeds          []embed         `json:"embeds,omitempty"`
	AllowedMentions allowedMentions `json:"allowed_mentions"`
}

type apiMessage struct {
	ID string `json:"id"`
}

func newHTTP(base, token string, timeout time.Duration, transport http.RoundTripper) *resty.Client {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = DefaultAPIBase
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	rc := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Authorization", "Bot "+token).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "DiscordBot (classbot, 1.0)")
	if transport != nil {
		rc.SetTransport(transport)
	}
	return rc
}

// do executes one request, waiting out 429s up to maxRateLimitRetries times.
func do(ctx context.Context, rc *resty.Client, method, path string, body, result any) error {
	for attempt := 0; ; attempt++ {
		var eb errorBody
		req := rc.R().SetContext(ctx).SetError(&eb)
		if result != nil {
			req.SetResult(result)
		}
		if body != nil {
			req.SetBody(body)
		}
		resp, err := req.Execute(method, path)
		if err != nil {
			return err
		}
		if !resp.IsError() {
			return nil
		}
		apiErr := &APIError{HTTPStatus: resp.StatusCode(), Code: eb.Code, Message: eb.Message}
		if resp.StatusCode() != http.StatusTooManyRequests {
			return apiErr
		}
		apiErr.RetryAfter = retryAfter(resp.Header().Get("Retry-After"), eb.RetryAfter)
		if attempt >= maxRateLimitRetries || apiErr.RetryAfter > maxRateLimitWait {
			return apiErr
		}
		t := time.NewTimer(apiErr.RetryAfter)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(apiErr, ctx.Err())
		case <-t.C:
		}
	}
}

func retryAfter(header string, body float64) time.Duration {
	if body > 0 {
		return time.Duration(body * float64(time.Second))
	}
	if s, err := strconv.ParseFloat(strings.TrimSpace(header), 64); err == nil && s > 0 {
		return time.Duration(s * float64(time.Second))
	}
	return time.Second
}
