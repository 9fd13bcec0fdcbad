package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/telcprep/sprachcache/internal/cache"
)

var (
	contentCmd = &cobra.Command{
		Use:   "content",
		Short: "Read and store cached exercise documents",
	}

	contentGetCmd = &cobra.Command{
		Use:   "get TYPE PARAMS",
		Short: "Print the cached document for TYPE and PARAMS",
		Long:  paragraph(fmt.Sprintf("\n%s is a JSON object of generation parameters. Key order does not matter.", keyword("PARAMS"))),
		Example: paragraph(`sprachcache content get exercise '{"teil":2,"thema":"Reisen"}'`),
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1])
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				doc, ok, err := a.content.LookupRaw(ctx, cfg.Owner, cache.ContentType(args[0]), params)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no cached %s for these parameters", args[0])
				}
				fmt.Println(string(doc))
				return nil
			})(cmd, args)
		},
	}

	contentPutCmd = &cobra.Command{
		Use:   "put TYPE PARAMS",
		Short: "Store a document read from stdin under TYPE and PARAMS",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1])
			if err != nil {
				return err
			}
			doc, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("unable to read document: %w", err)
			}
			if !json.Valid(doc) {
				return errors.New("document on stdin is not valid JSON")
			}
			return withApp(func(ctx context.Context, a *app) error {
				return a.content.SaveRaw(ctx, cfg.Owner, cache.ContentType(args[0]), params, doc)
			})(cmd, args)
		},
	}
)

func parseParams(raw string) (map[string]any, error) {
	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("parameters must be a JSON object: %w", err)
	}
	return params, nil
}

func init() {
	contentCmd.AddCommand(contentGetCmd, contentPutCmd)
}
