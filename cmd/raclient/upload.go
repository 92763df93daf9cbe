package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/natserract/raclients/pkg/auth"
	"github.com/natserract/raclients/pkg/modelclient"
	"github.com/natserract/raclients/pkg/modelclient/lora"
	"github.com/natserract/raclients/pkg/modelclient/mo"
)

type uploadFlags struct {
	target    string
	file      string
	edit      bool
	force     bool
	chunkSize int
	output    string
}

func newUploadCommand(g *globals) *cobra.Command {
	f := &uploadFlags{}
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload the objects in a JSON or YAML file",
		Long: `Upload the objects in a JSON or YAML file to MO or LoRa.

The file holds a list of objects. Each object has a "type", an optional
"uuid" and the fields of the object, e.g.

  - type: org_unit
    uuid: f06ee470-9f17-566f-acbe-e938112d46d9
    name: Hogwarts`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, g, f)
		},
	}
	cmd.Flags().StringVar(&f.target, "target", "mo", "backend to upload to: mo or lora")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "file with objects (.json, .yaml or .yml)")
	cmd.Flags().BoolVar(&f.edit, "edit", false, "edit existing objects instead of creating them (mo only)")
	cmd.Flags().BoolVar(&f.force, "force", false, "skip MO's validations")
	cmd.Flags().IntVar(&f.chunkSize, "chunk-size", modelclient.DefaultChunkSize, "number of concurrent uploads")
	cmd.Flags().StringVar(&f.output, "output", "", "write responses as JSON to this file instead of stdout")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runUpload(cmd *cobra.Command, g *globals, f *uploadFlags) error {
	objs, err := readObjects(f.file)
	if err != nil {
		return err
	}

	clientOpts := []modelclient.Option{
		modelclient.WithChunkSize(f.chunkSize),
		modelclient.WithLogger(g.logger),
		modelclient.WithProgress(newBarProgress(cmd.ErrOrStderr())),
	}

	var client *modelclient.Client
	switch f.target {
	case "mo":
		client, err = mo.NewModelClient(g.settings,
			mo.WithForce(f.force),
			mo.WithAuthOptions(auth.WithLogger(g.logger)),
			mo.WithClientOptions(clientOpts...))
	case "lora":
		if f.edit {
			return fmt.Errorf("lora does not support edits")
		}
		client, err = lora.NewModelClient(g.settings,
			lora.WithAuthOptions(auth.WithLogger(g.logger)),
			lora.WithClientOptions(clientOpts...))
	default:
		return fmt.Errorf("unknown target %q, expected mo or lora", f.target)
	}
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := cmd.Context()
	var results []any
	if f.edit {
		results, err = client.Edit(ctx, objs)
	} else {
		results, err = client.Upload(ctx, objs)
	}
	g.logger.Info("Upload finished",
		zap.String("target", f.target),
		zap.Int("objects", len(objs)),
		zap.Int("succeeded", len(results)),
		zap.Bool("edit", f.edit))
	if werr := writeResults(cmd, f.output, results); werr != nil && err == nil {
		err = werr
	}
	return err
}

// readObjects decodes a list of objects from a JSON or YAML file.
func readObjects(path string) ([]modelclient.Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read objects: %w", err)
	}

	var raw []map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &raw)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("unsupported object file %q, expected .json, .yaml or .yml", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	objs := make([]modelclient.Object, 0, len(raw))
	for i, m := range raw {
		obj, err := modelclient.ObjectFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", i, err)
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

func writeResults(cmd *cobra.Command, path string, results []any) error {
	if results == nil {
		results = []any{}
	}
	out := cmd.OutOrStdout()
	if path != "" {
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		out = file
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
