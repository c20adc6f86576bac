package assignment

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"
)

type ExtractOpts struct {
	Image   string
	PDFPath string
	Timeout time.Duration
}

// ExtractPDF runs pdftotext -layout in a throwaway container and returns the
// extracted text. The PDF's directory is mounted read-only; output goes to a
// temporary directory on the host.
func ExtractPDF(ctx context.Context, opts *ExtractOpts) (string, error) {
	image := opts.Image
	if image == "" {
		image = DefaultImage
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	pdf, err := filepath.Abs(opts.PDFPath)
	if err != nil {
		return "", fmt.Errorf("resolving pdf path: %w", err)
	}
	if _, err := os.Stat(pdf); err != nil {
		return "", fmt.Errorf("reading pdf: %w", err)
	}
	outDir, err := os.MkdirTemp("", "autograder-pdf-")
	if err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return "", fmt.Errorf("creating docker client: %w", err)
	}
	defer cli.Close()

	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config: &container.Config{
			Image:  image,
			Cmd:    []string{"pdftotext", "-layout", "-enc", "UTF-8", "/in/" + filepath.Base(pdf), "/out/assignment.txt"},
			Labels: map[string]string{"autograder": "true"},
		},
		HostConfig: &container.HostConfig{
			NetworkMode: "none",
			Mounts: []mount.Mount{
				{Type: mount.TypeBind, Source: filepath.Dir(pdf), Target: "/in", ReadOnly: true},
				{Type: mount.TypeBind, Source: outDir, Target: "/out"},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}
	containerID := createResp.ID
	defer func() {
		cli.ContainerRemove(context.Background(), containerID, client.ContainerRemoveOptions{Force: true})
	}()

	if _, err := cli.ContainerStart(ctx, containerID, client.ContainerStartOptions{}); err != nil {
		return "", fmt.Errorf("starting container: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	waitResult := cli.ContainerWait(waitCtx, containerID, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
	for {
		select {
		case err := <-waitResult.Error:
			if err != nil {
				return "", fmt.Errorf("waiting for pdftotext: %w", err)
			}
		case status := <-waitResult.Result:
			if status.StatusCode != 0 {
				return "", fmt.Errorf("pdftotext exited %d: %s", status.StatusCode, containerLogs(cli, containerID))
			}
			data, err := os.ReadFile(filepath.Join(outDir, "assignment.txt"))
			if err != nil {
				return "", fmt.Errorf("reading extracted text: %w", err)
			}
			if strings.TrimSpace(string(data)) == "" {
				return "", fmt.Errorf("no text extracted from %s", filepath.Base(pdf))
			}
			return string(data), nil
		}
	}
}

func containerLogs(cli *client.Client, id string) string {
	logReader, err := cli.ContainerLogs(context.Background(), id, client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true, Tail: "20"})
	if err != nil || logReader == nil {
		return "no logs"
	}
	defer logReader.Close()
	data, _ := io.ReadAll(logReader)
	return strings.TrimSpace(string(data))
}
