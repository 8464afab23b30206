// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command shmq-sample demonstrates queue sharing between a parent process
// and spawned children: the parent creates a named segment and enqueues
// greetings, the children attach to the segment by name and drain them.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"code.hybscloud.com/iox"
	"github.com/spf13/cobra"

	"code.hybscloud.com/shmq"
	"code.hybscloud.com/shmq/shm"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "shmq-sample",
		Short:         "shared-memory queue demo between parent and child processes",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(runCmd(), childCmd(), statCmd())
	return cmd
}

func runCmd() *cobra.Command {
	var (
		children int
		messages int
		entries  int
		payload  int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "spawn children and exchange messages over a fresh segment",
		RunE: func(cmd *cobra.Command, args []string) error {
			name := fmt.Sprintf("sample-%d", os.Getpid())
			b := shmq.NewBuilder(entries).Payload(payload).Messages(entries)
			seg, err := shm.Create(name, b.RequiredSize())
			if err != nil {
				return err
			}
			defer seg.Close()
			defer seg.Unlink()

			q, err := b.Build(seg.Bytes())
			if err != nil {
				return err
			}

			self, err := os.Executable()
			if err != nil {
				return err
			}
			procs := make([]*exec.Cmd, 0, children)
			for range children {
				child := exec.Command(self, "child",
					"--segment", name, "--count", fmt.Sprint(messages))
				child.Stdout = cmd.OutOrStdout()
				child.Stderr = cmd.ErrOrStderr()
				if err := child.Start(); err != nil {
					return err
				}
				procs = append(procs, child)
			}

			backoff := iox.Backoff{}
			for i := range children * messages {
				msg := fmt.Appendf(nil, "[%d:%d] hello", os.Getpid(), i)
				for q.Enqueue(msg) != nil {
					backoff.Wait()
				}
				backoff.Reset()
			}

			for _, child := range procs {
				if err := child.Wait(); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "overflow count: %d\n", q.OverflowCount())
			return nil
		},
	}
	cmd.Flags().IntVar(&children, "children", 2, "number of child processes")
	cmd.Flags().IntVar(&messages, "messages", 8, "messages per child")
	cmd.Flags().IntVar(&entries, "entries", 16, "ring slot count")
	cmd.Flags().IntVar(&payload, "payload", 256, "maximum payload size in bytes")
	return cmd
}

func childCmd() *cobra.Command {
	var (
		segment string
		count   int
	)
	cmd := &cobra.Command{
		Use:    "child",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			seg, err := shm.Open(segment)
			if err != nil {
				return err
			}
			defer seg.Close()

			q, err := shmq.Attach(seg.Bytes())
			if err != nil {
				return err
			}

			backoff := iox.Backoff{}
			deadline := time.Now().Add(10 * time.Second)
			for received := 0; received < count; {
				msg, err := q.Dequeue()
				if err != nil {
					if time.Now().After(deadline) {
						return fmt.Errorf("timed out after %d messages", received)
					}
					backoff.Wait()
					continue
				}
				backoff.Reset()
				fmt.Fprintf(cmd.OutOrStdout(), "[%d:%d] receive# %s\n", os.Getpid(), received, msg)
				received++
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&segment, "segment", "", "segment name to attach")
	cmd.Flags().IntVar(&count, "count", 1, "messages to drain")
	cmd.MarkFlagRequired("segment")
	return cmd
}

func statCmd() *cobra.Command {
	var segment string
	cmd := &cobra.Command{
		Use:   "stat",
		Short: "attach to a segment and print queue state",
		RunE: func(cmd *cobra.Command, args []string) error {
			seg, err := shm.Open(segment)
			if err != nil {
				return err
			}
			defer seg.Close()

			q, err := shmq.Attach(seg.Bytes())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "slots:    %d\n", q.Cap())
			fmt.Fprintf(cmd.OutOrStdout(), "empty:    %v\n", q.IsEmpty())
			fmt.Fprintf(cmd.OutOrStdout(), "full:     %v\n", q.IsFull())
			fmt.Fprintf(cmd.OutOrStdout(), "overflow: %d\n", q.OverflowCount())
			return nil
		},
	}
	cmd.Flags().StringVar(&segment, "segment", "", "segment name to attach")
	cmd.MarkFlagRequired("segment")
	return cmd
}
