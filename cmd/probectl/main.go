package main

import (
    "fmt"
    "os"

    "github.com/spf13/cobra"

    probecli "github.com/amirimatin/cluster-probe/pkg/cli"
)

func main() {
    if err := newRoot().Execute(); err != nil {
        fmt.Fprintln(os.Stderr, "error:", err)
        os.Exit(1)
    }
}

func newRoot() *cobra.Command {
    root := &cobra.Command{
        Use:           "probectl",
        Short:         "cluster health, HA and suspend probe",
        SilenceUsage:  true,
        SilenceErrors: true,
    }
    probecli.AddAll(root)
    return root
}
