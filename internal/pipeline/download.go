package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/Veraticus/paperflow/internal/common"
)

// fetchURL downloads the document bytes with a bounded reader so a
// misbehaving server cannot exhaust memory. A failed download is an
// extraction-class failure: there is nothing to process.
func (p *Processor) fetchURL(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, common.NewUserError("the document URL is invalid", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, common.NewUserError("could not download the document; check the URL and try again", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, common.NewUserError(
			"could not download the document; check the URL and try again",
			fmt.Errorf("download returned status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxDownloadSize+1))
	if err != nil {
		return nil, common.NewUserError("the document download was interrupted; try again", err)
	}
	if int64(len(data)) > p.cfg.MaxDownloadSize {
		return nil, common.NewUserError(
			fmt.Sprintf("the document exceeds the %dMB download limit", p.cfg.MaxDownloadSize/(1024*1024)), nil)
	}
	return data, nil
}
