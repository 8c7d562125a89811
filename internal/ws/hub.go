package ws

import "sync"

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans poll updates out to the subscribers of each poll.
type Hub struct {
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	count     chan countRequest
	done      chan struct{}
	closeOnce sync.Once
}

type message struct {
	pollID  string
	payload []byte
}

type subscription struct {
	pollID string
	client Subscriber
}

type countRequest struct {
	pollID string
	reply  chan int
}

// NewHub creates a Hub and starts its dispatch loop.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
		count:     make(chan countRequest),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			if _, ok := h.clients[sub.pollID]; !ok {
				h.clients[sub.pollID] = make(map[Subscriber]struct{})
			}
			h.clients[sub.pollID][sub.client] = struct{}{}
		case sub := <-h.unreg:
			h.remove(sub.pollID, sub.client)
		case msg := <-h.broadcast:
			for c := range h.clients[msg.pollID] {
				if err := c.Send(msg.payload); err != nil {
					c.Close()
					h.remove(msg.pollID, c)
				}
			}
		case req := <-h.count:
			req.reply <- len(h.clients[req.pollID])
		case <-h.done:
			for pollID, clients := range h.clients {
				for c := range clients {
					c.Close()
				}
				delete(h.clients, pollID)
			}
			return
		}
	}
}

func (h *Hub) remove(pollID string, client Subscriber) {
	clients, ok := h.clients[pollID]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, pollID)
	}
}

// Register adds a client to a poll stream.
func (h *Hub) Register(pollID string, client Subscriber) {
	select {
	case h.register <- subscription{pollID: pollID, client: client}:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(pollID string, client Subscriber) {
	select {
	case h.unreg <- subscription{pollID: pollID, client: client}:
	case <-h.done:
	}
}

// Broadcast sends payload to all clients of a poll. Clients whose Send
// fails are closed and dropped.
func (h *Hub) Broadcast(pollID string, payload []byte) {
	select {
	case h.broadcast <- message{pollID: pollID, payload: payload}:
	case <-h.done:
	}
}

// Subscribers reports how many clients follow a poll.
func (h *Hub) Subscribers(pollID string) int {
	req := countRequest{pollID: pollID, reply: make(chan int, 1)}
	select {
	case h.count <- req:
		return <-req.reply
	case <-h.done:
		return 0
	}
}

// Close disconnects every client and stops the dispatch loop.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
