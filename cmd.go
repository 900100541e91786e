package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"interview-gateway/internal/envelope"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "interview-gateway",
		Short:         "Шлюз голосового AI-интервью",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newDecodeCommand())
	return rootCmd
}

func newDecodeCommand() *cobra.Command {
	var boundary string
	var contentType string

	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Разобрать сохранённый multipart/mixed ответ AI-бэкенда",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if boundary == "" {
				if contentType == "" {
					return fmt.Errorf("нужен --boundary или --content-type")
				}
				b, err := envelope.BoundaryFrom(contentType)
				if err != nil {
					return err
				}
				boundary = b
			}

			var raw []byte
			var err error
			if len(args) == 0 || args[0] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("ошибка чтения входа: %w", err)
			}

			msg, err := envelope.Decode(raw, boundary)
			if err != nil {
				return err
			}
			return printMessage(cmd.OutOrStdout(), msg)
		},
	}

	cmd.Flags().StringVar(&boundary, "boundary", "", "Граница частей")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Заголовок Content-Type ответа, из него берётся граница")
	return cmd
}

func printMessage(w io.Writer, msg *envelope.Message) error {
	for i, part := range msg.Parts {
		fmt.Fprintf(w, "part %d: %s (%s, %d bytes)\n", i, part.ContentType, part.Kind, len(part.Body))
		if part.Kind != envelope.KindJSON {
			continue
		}
		var pretty any
		if err := json.Unmarshal(part.Body, &pretty); err != nil {
			fmt.Fprintf(w, "  invalid json: %v\n", err)
			continue
		}
		out, err := json.MarshalIndent(pretty, "  ", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s\n", out)
	}
	for _, d := range msg.Dropped {
		fmt.Fprintf(w, "dropped %d: %s (%s)\n", d.Index, d.ContentType, d.Reason)
	}
	return nil
}
