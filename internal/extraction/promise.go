package extraction

import (
	"context"
	"sync"
)

type outcome struct {
	result *Result
	err    error
}

// ResultPromise 提取结果的一次性承诺
// Upload 返回后台提取的句柄；Await 阻塞直到结果就绪或 ctx 结束。
type ResultPromise struct {
	once sync.Once
	done chan struct{}
	out  outcome
}

func newResultPromise() *ResultPromise {
	return &ResultPromise{done: make(chan struct{})}
}

func (p *ResultPromise) resolve(r *Result) {
	p.once.Do(func() {
		p.out = outcome{result: r}
		close(p.done)
	})
}

func (p *ResultPromise) reject(err error) {
	p.once.Do(func() {
		p.out = outcome{err: err}
		close(p.done)
	})
}

// Await 等待提取完成
func (p *ResultPromise) Await(ctx context.Context) (*Result, error) {
	select {
	case <-p.done:
		return p.out.result, p.out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
