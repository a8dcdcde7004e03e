package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/jrsteele09/go-bsky-client/atproto"
	"github.com/jrsteele09/go-bsky-client/bsky"
)

func runCommand(ctx context.Context, client *bsky.Client, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("no command given")
	}
	command, rest := args[0], args[1:]

	switch command {
	case "whoami":
		session := client.Sessions.CurrentSession()
		if session == nil {
			return fmt.Errorf("not logged in")
		}
		fmt.Fprintf(out, "%s (%s)\n", session.Handle, session.DID)
		if expiry, err := session.AccessTokenExpiry(); err == nil {
			fmt.Fprintf(out, "access token expires %s\n", expiry.Local().Format("2006-01-02 15:04:05"))
		}
		return nil

	case "post":
		if len(rest) != 1 {
			return fmt.Errorf("usage: post <text>")
		}
		resp, err := client.Posts.CreateTextPost(ctx, rest[0])
		if err != nil {
			return err
		}
		return printRecord(out, resp)

	case "reply":
		if len(rest) != 3 {
			return fmt.Errorf("usage: reply <uri> <cid> <text>")
		}
		resp, err := client.Posts.CreateReply(ctx, atproto.PostRef{URI: rest[0], Cid: rest[1]}, rest[2])
		if err != nil {
			return err
		}
		return printRecord(out, resp)

	case "image":
		if len(rest) != 3 {
			return fmt.Errorf("usage: image <path> <alt> <text>")
		}
		file, err := os.Open(rest[0])
		if err != nil {
			return err
		}
		defer file.Close()
		resp, err := client.Media.CreatePostWithImage(ctx, rest[2], file, contentTypeFor(rest[0]), rest[1])
		if err != nil {
			return err
		}
		return printRecord(out, resp)

	case "delete":
		if len(rest) != 1 {
			return fmt.Errorf("usage: delete <uri>")
		}
		if err := client.Posts.DeletePost(ctx, rest[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %s\n", rest[0])
		return nil

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printRecord(out io.Writer, resp *atproto.CreateRecordResponse) error {
	_, err := fmt.Fprintf(out, "%s\n%s\n", resp.URI, resp.Cid)
	return err
}

func contentTypeFor(path string) string {
	if contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); contentType != "" {
		return contentType
	}
	return "application/octet-stream"
}
