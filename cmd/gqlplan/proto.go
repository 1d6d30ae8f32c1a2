package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hanpama/gqlplan/internal/protoreg"
)

type protoOptions struct {
	*rootOptions
	pkg string
	out string
}

func newProtoCommand(root *rootOptions) *cobra.Command {
	opts := &protoOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "proto",
		Short: "Print the protobuf contract of the remote services",
		Long: `Print the protobuf service definitions a gRPC backend implements to serve the
@service fields of the schema. Each method receives its call arguments as a
google.protobuf.ListValue and returns a google.protobuf.Value.

Example:
  gqlplan proto -c gqlplan.yaml
  gqlplan proto --schema schema.graphql --package people.v1 --out proto/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProto(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.pkg, "package", "", "protobuf package (defaults to services.package)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write one file per service below this directory")
	return cmd
}

func runProto(cmd *cobra.Command, opts *protoOptions) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	s, err := loadSchema(cfg)
	if err != nil {
		return err
	}
	pkg := cfg.Services.Package
	if cmd.Flags().Changed("package") {
		pkg = opts.pkg
	}
	reg, err := protoreg.Build(s, pkg)
	if err != nil {
		return err
	}
	if len(reg.Files()) == 0 {
		return fmt.Errorf("the schema declares no @service fields")
	}
	if opts.out != "" {
		return protoreg.Render(reg, opts.out)
	}
	return protoreg.Print(reg, cmd.OutOrStdout())
}
