package telegram

import (
	"sync"

	"github.com/radiusdt/ppbot/internal/bot"
)

// chatQueue holds the updates of one chat that are waiting to be handled.
type chatQueue struct {
	pending []bot.Update
}

// chatQueues hands updates of the same chat to one worker at a time, in
// arrival order. Different chats are handled in parallel. A chat's worker
// exits and its queue is dropped as soon as the queue drains.
type chatQueues struct {
	mu     sync.Mutex
	queues map[int64]*chatQueue
	handle func(bot.Update)
	wg     sync.WaitGroup
}

func newChatQueues(handle func(bot.Update)) *chatQueues {
	return &chatQueues{
		queues: make(map[int64]*chatQueue),
		handle: handle,
	}
}

func (c *chatQueues) push(u bot.Update) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if q, ok := c.queues[u.ChatID]; ok {
		q.pending = append(q.pending, u)
		return
	}

	q := &chatQueue{pending: []bot.Update{u}}
	c.queues[u.ChatID] = q
	c.wg.Add(1)
	go c.drain(u.ChatID, q)
}

func (c *chatQueues) drain(chatID int64, q *chatQueue) {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		if len(q.pending) == 0 {
			delete(c.queues, chatID)
			c.mu.Unlock()
			return
		}
		u := q.pending[0]
		q.pending[0] = bot.Update{}
		q.pending = q.pending[1:]
		c.mu.Unlock()

		c.handle(u)
	}
}

// wait blocks until every queued update has been handled.
func (c *chatQueues) wait() {
	c.wg.Wait()
}

func (c *chatQueues) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queues)
}
