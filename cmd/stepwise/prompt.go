package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rendis/stepwise/internal/providers"
	"github.com/rendis/stepwise/pkg/schema"
)

// terminalPrompter answers suspended prompts from a line-oriented terminal.
// An empty line takes the default; EOF or a lone "!" cancels the prompt.
type terminalPrompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func newTerminalPrompter(in io.Reader, out io.Writer) *terminalPrompter {
	return &terminalPrompter{in: bufio.NewScanner(in), out: out}
}

// serve answers requests from p until ctx is done.
func (t *terminalPrompter) serve(ctx context.Context, p *providers.ChannelPrompter) {
	for {
		select {
		case <-ctx.Done():
			return
		case pending := <-p.Requests():
			resp := t.answer(pending.Request)
			if resp.Cancelled {
				pending.Cancel()
				continue
			}
			pending.Respond(resp)
		}
	}
}

func (t *terminalPrompter) answer(req schema.PromptRequest) schema.PromptResponse {
	if req.Title != "" {
		fmt.Fprintf(t.out, "== %s ==\n", req.Title)
	}
	if req.Message != "" {
		fmt.Fprintln(t.out, req.Message)
	}

	switch req.Kind {
	case schema.PromptChoice, schema.PromptMulti:
		for i, opt := range req.Options {
			fmt.Fprintf(t.out, "  %d) %s\n", i+1, opt)
		}
	case schema.PromptWriteFile:
		if req.Preview != "" {
			fmt.Fprintf(t.out, "--- preview ---\n%s\n---------------\n", req.Preview)
		}
	case schema.PromptFile:
		if req.Folder != "" {
			fmt.Fprintf(t.out, "(folder: %s)\n", req.Folder)
		}
	}

	for {
		line, ok := t.readLine(req)
		if !ok {
			return schema.PromptResponse{Cancelled: true}
		}
		resp, valid := parseAnswer(req, line)
		if valid {
			return resp
		}
		fmt.Fprintln(t.out, "invalid answer, try again")
	}
}

func (t *terminalPrompter) readLine(req schema.PromptRequest) (string, bool) {
	prompt := "> "
	if req.Default != "" {
		prompt = fmt.Sprintf("[%s] > ", req.Default)
	}
	if req.Kind == schema.PromptConfirm || req.Kind == schema.PromptWriteFile {
		prompt = "(y/n) " + prompt
	}
	fmt.Fprint(t.out, prompt)
	if !t.in.Scan() {
		return "", false
	}
	line := strings.TrimSpace(t.in.Text())
	if line == "!" {
		return "", false
	}
	if line == "" {
		line = req.Default
	}
	return line, true
}

// parseAnswer turns one line into a response for req. valid is false when
// the line does not fit the prompt kind.
func parseAnswer(req schema.PromptRequest, line string) (resp schema.PromptResponse, valid bool) {
	switch req.Kind {
	case schema.PromptConfirm, schema.PromptWriteFile:
		switch strings.ToLower(line) {
		case "y", "yes", "true":
			return schema.PromptResponse{Value: "true"}, true
		case "n", "no", "false":
			return schema.PromptResponse{Value: "false"}, true
		}
		return schema.PromptResponse{}, false

	case schema.PromptChoice:
		opt, ok := pickOption(req.Options, line)
		if !ok {
			return schema.PromptResponse{}, false
		}
		return schema.PromptResponse{Value: opt, Values: []string{opt}}, true

	case schema.PromptMulti:
		var picked []string
		for _, part := range strings.Split(line, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			opt, ok := pickOption(req.Options, part)
			if !ok {
				return schema.PromptResponse{}, false
			}
			picked = append(picked, opt)
		}
		if len(picked) == 0 {
			return schema.PromptResponse{}, false
		}
		return schema.PromptResponse{Value: strings.Join(picked, ","), Values: picked}, true

	default:
		if line == "" && req.Kind == schema.PromptFile {
			return schema.PromptResponse{}, false
		}
		return schema.PromptResponse{Value: line, Values: []string{line}}, true
	}
}

// pickOption accepts a 1-based index or the option text itself.
func pickOption(options []string, s string) (string, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		if n >= 1 && n <= len(options) {
			return options[n-1], true
		}
		return "", false
	}
	for _, opt := range options {
		if strings.EqualFold(opt, s) {
			return opt, true
		}
	}
	return "", false
}
