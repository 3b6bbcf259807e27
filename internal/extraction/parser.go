package extraction

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dslipak/pdf"
)

// extractText 按扩展名提取文档文本
// PDF 走解析器，其余按纯文本处理。
func extractText(fileName string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == ".pdf" {
		return extractPDFText(data)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("文档内容为空")
	}
	return text, nil
}

// extractPDFText 解析 PDF 文本
func extractPDFText(data []byte) (string, error) {
	readSeeker := bytes.NewReader(data)
	r, err := pdf.NewReader(readSeeker, int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("打开 PDF 失败: %w", err)
	}

	var buf strings.Builder
	numPages := r.NumPage()

	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// 单页失败继续处理其余页面
			continue
		}

		buf.WriteString(text)
		buf.WriteString("\n")
	}

	content := strings.TrimSpace(buf.String())
	if content == "" {
		return "", fmt.Errorf("PDF 内容为空或无法解析文本")
	}

	return content, nil
}
