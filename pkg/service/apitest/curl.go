package apitest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"go.keploy.io/testengine/pkg/models"
)

type curlRequest struct {
	Method          string
	URL             string
	Headers         map[string]string
	Body            string
	Insecure        bool
	FollowRedirects bool
	// Compressed needs no header: the transport asks for gzip and decodes it.
	Compressed      bool
}

// shortFlags are single-letter options that take no argument and may be
// bundled, as in -sSkL.
const shortFlags = "sSkLIGv"

// ExecuteCurlCommand runs a curl command line. Parse failures become error
// results like any other execution failure.
func (t *APITester) ExecuteCurlCommand(ctx context.Context, text string) *models.APIResult {
	req, err := ParseCurl(text)
	if err != nil {
		return &models.APIResult{
			Name:      "curl",
			Status:    models.ResultError,
			Errors:    []string{fmt.Sprintf("failed to parse curl command: %v", err)},
			Curl:      text,
			Timestamp: t.clock.Now(),
		}
	}
	tc := &models.APITestCase{
		ID:       "curl",
		Name:     req.Method + " " + req.URL,
		Endpoint: req.URL,
		Method:   req.Method,
		Headers:  req.Headers,
		Curl:     text,
	}
	if req.Body != "" {
		tc.Body = req.Body
	}
	return t.execute(ctx, tc, "", requestOptions{
		insecure:        req.Insecure || t.insecure,
		followRedirects: req.FollowRedirects,
		curl:            text,
	})
}

// ParseCurl understands the subset of curl options used to replay requests.
func ParseCurl(text string) (*curlRequest, error) {
	args, err := splitWords(text)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 || args[0] != "curl" {
		return nil, errors.New("command must start with curl")
	}

	req := &curlRequest{Headers: map[string]string{}}
	var (
		method   string
		data     []string
		getQuery bool
		head     bool
	)
	next := func(i *int, flag string) (string, error) {
		if *i+1 >= len(args) {
			return "", fmt.Errorf("option %s needs a value", flag)
		}
		*i++
		return args[*i], nil
	}

	for i := 1; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-X" || arg == "--request":
			v, err := next(&i, arg)
			if err != nil {
				return nil, err
			}
			method = strings.ToUpper(v)
		case strings.HasPrefix(arg, "-X") && len(arg) > 2:
			method = strings.ToUpper(arg[2:])
		case arg == "-H" || arg == "--header":
			v, err := next(&i, arg)
			if err != nil {
				return nil, err
			}
			name, value, ok := strings.Cut(v, ":")
			if !ok || strings.TrimSpace(name) == "" {
				return nil, fmt.Errorf("malformed header %q", v)
			}
			req.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		case arg == "-d" || arg == "--data" || arg == "--data-raw" || arg == "--data-binary":
			v, err := next(&i, arg)
			if err != nil {
				return nil, err
			}
			data = append(data, v)
		case arg == "--url":
			v, err := next(&i, arg)
			if err != nil {
				return nil, err
			}
			req.URL = v
		case arg == "--head":
			head = true
		case arg == "--get":
			getQuery = true
		case arg == "--compressed":
			req.Compressed = true
		case arg == "--silent" || arg == "--show-error" || arg == "--verbose":
		case arg == "--insecure":
			req.Insecure = true
		case arg == "--location":
			req.FollowRedirects = true
		case strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "--") && len(arg) > 1 && strings.Trim(arg[1:], shortFlags) == "":
			for _, c := range arg[1:] {
				switch c {
				case 'k':
					req.Insecure = true
				case 'L':
					req.FollowRedirects = true
				case 'I':
					head = true
				case 'G':
					getQuery = true
				}
			}
		case strings.HasPrefix(arg, "-"):
			return nil, fmt.Errorf("unsupported option %s", arg)
		default:
			if req.URL != "" {
				return nil, fmt.Errorf("unexpected argument %q", arg)
			}
			req.URL = arg
		}
	}

	if req.URL == "" {
		return nil, errors.New("no URL given")
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", req.URL, err)
	}
	if u.Scheme == "" {
		req.URL = "http://" + req.URL
	}

	body := strings.Join(data, "&")
	switch {
	case getQuery:
		if body != "" {
			sep := "?"
			if strings.Contains(req.URL, "?") {
				sep = "&"
			}
			req.URL += sep + body
		}
		body = ""
		if method == "" {
			method = http.MethodGet
		}
	case head:
		method = http.MethodHead
	case method == "" && body != "":
		method = http.MethodPost
	case method == "":
		method = http.MethodGet
	}
	if body != "" && headerValue(req.Headers, "Content-Type") == "" {
		req.Headers["Content-Type"] = "application/x-www-form-urlencoded"
	}
	req.Method = method
	req.Body = body
	return req, nil
}

// splitWords tokenizes a shell command line with single quotes, double
// quotes, backslash escapes and line continuations.
func splitWords(s string) ([]string, error) {
	var (
		words   []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			if r != '\n' {
				cur.WriteRune(r)
				inWord = true
			}
			escaped = false
		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case quote == '"':
			switch r {
			case '"':
				quote = 0
			case '\\':
				escaped = true
			default:
				cur.WriteRune(r)
			}
		case r == '\\':
			escaped = true
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, errors.New("unterminated quote")
	}
	if escaped {
		return nil, errors.New("trailing backslash")
	}
	if inWord {
		words = append(words, cur.String())
	}
	return words, nil
}

// BuildCurl renders a request as a curl command with headers in sorted order.
func BuildCurl(method, target string, headers map[string]string, body string) string {
	var b strings.Builder
	b.WriteString("curl --request ")
	b.WriteString(method)
	b.WriteString(" \\\n  --url ")
	b.WriteString(shellQuote(target))
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" \\\n  --header ")
		b.WriteString(shellQuote(k + ": " + headers[k]))
	}
	if body != "" {
		b.WriteString(" \\\n  --data ")
		b.WriteString(shellQuote(body))
	}
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
