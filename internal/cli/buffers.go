package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/thyra/internal/bufstore"
)

func init() {
	buffers := &cobra.Command{
		Use:   "buffers",
		Short: "Inspect and manage reasoning templates",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored templates",
		Run:   runBuffersList,
	}

	rm := &cobra.Command{
		Use:   "rm",
		Short: "Delete a template",
		Run:   runBuffersRm,
	}
	rm.Flags().StringP("signature", "s", "", "Template signature (required)")
	rm.MarkFlagRequired("signature")

	seed := &cobra.Command{
		Use:   "seed",
		Short: "Insert the built-in clinical templates",
		Run:   runBuffersSeed,
	}

	buffers.AddCommand(list, rm, seed)
	RootCmd.AddCommand(buffers)
}

func runBuffersList(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	entries, err := s.All(cmd.Context())
	if err != nil {
		exitErr("list", err)
	}

	b, _ := json.MarshalIndent(entries, "", "  ")
	fmt.Println(string(b))
}

func runBuffersRm(cmd *cobra.Command, args []string) {
	signature, _ := cmd.Flags().GetString("signature")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.Remove(cmd.Context(), signature); err != nil {
		exitErr("rm", err)
	}
	fmt.Printf("deleted %s\n", signature)
}

func runBuffersSeed(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	n, err := bufstore.Seed(cmd.Context(), s)
	if err != nil {
		exitErr("seed", err)
	}
	fmt.Printf("seeded %d templates\n", n)
}
