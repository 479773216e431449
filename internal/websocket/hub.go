package websocket

import "github.com/rs/zerolog/log"

type subscription struct {
	client     *Client
	collection string
}

type reply struct {
	client  *Client
	message []byte
}

// Hub maintains the set of active clients and fans change messages out to
// them. All client bookkeeping happens on the Run goroutine.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	publish   chan Change
	subscribe chan subscription
	replies   chan reply
	done      chan struct{}

	// A map of collection names to the clients following only that collection.
	subscriptions map[string]map[*Client]bool
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		publish:       make(chan Change, 256),
		subscribe:     make(chan subscription),
		replies:       make(chan reply),
		done:          make(chan struct{}),
		clients:       make(map[*Client]bool),
		subscriptions: make(map[string]map[*Client]bool),
	}
}

// Run starts the Hub's message processing loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				h.drop(client)
			}
			return
		case client := <-h.Register:
			h.clients[client] = true
			if client.Collection != "" {
				h.addSubscription(client, client.Collection)
			}
			log.Info().Int("total_clients", len(h.clients)).Str("collection", client.Collection).Msg("Client connected")
		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				log.Info().Int("total_clients", len(h.clients)).Msg("Client disconnected")
			}
		case sub := <-h.subscribe:
			if _, ok := h.clients[sub.client]; ok {
				h.removeSubscription(sub.client)
				sub.client.Collection = sub.collection
				if sub.collection != "" {
					h.addSubscription(sub.client, sub.collection)
				}
			}
		case r := <-h.replies:
			if _, ok := h.clients[r.client]; ok {
				h.deliver(r.client, r.message)
			}
		case change := <-h.publish:
			for client := range h.clients {
				if client.Collection == "" {
					h.deliverChange(client, change)
				}
			}
			for client := range h.subscriptions[change.Collection] {
				h.deliverChange(client, change)
			}
		}
	}
}

// Stop ends Run and closes every client.
func (h *Hub) Stop() {
	close(h.done)
}

// Publish queues a change for clients following its collection and for
// clients following everything. It never blocks; when the queue is full the
// change is dropped.
func (h *Hub) Publish(change Change) {
	select {
	case h.publish <- change:
	default:
		log.Warn().Str("collection", change.Collection).Msg("Change feed queue full, dropping message")
	}
}

// Subscribe switches the collection a client follows.
func (h *Hub) Subscribe(client *Client, collection string) {
	select {
	case h.subscribe <- subscription{client: client, collection: collection}:
	case <-h.done:
	}
}

// Join registers a client unless the hub has stopped.
func (h *Hub) Join(client *Client) {
	select {
	case h.Register <- client:
	case <-h.done:
	}
}

// Leave unregisters a client unless the hub has stopped.
func (h *Hub) Leave(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// Reply sends a message to one client if it is still connected.
func (h *Hub) Reply(client *Client, message []byte) {
	if message == nil {
		return
	}
	select {
	case h.replies <- reply{client: client, message: message}:
	case <-h.done:
	}
}

func (h *Hub) deliverChange(client *Client, change Change) {
	if message := client.render(change); message != nil {
		h.deliver(client, message)
	}
}

func (h *Hub) deliver(client *Client, message []byte) {
	select {
	case client.Send <- message:
	default:
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
	h.removeSubscription(client)
}

func (h *Hub) addSubscription(client *Client, collection string) {
	if h.subscriptions[collection] == nil {
		h.subscriptions[collection] = make(map[*Client]bool)
	}
	h.subscriptions[collection][client] = true
}

func (h *Hub) removeSubscription(client *Client) {
	for collection, subs := range h.subscriptions {
		if _, ok := subs[client]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.subscriptions, collection)
			}
		}
	}
}
