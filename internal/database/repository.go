package database

// Repository is the persistence collaborator for the hub and the HTTP API.
// The hub only ever mutates room state through it; membership and
// connection bookkeeping stay in memory.
type Repository interface {
	Ping() error
	CreateAccount(accountParams CreateAccountParams) (User, error)
	UpdateAccount(params UpdateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	TouchLastSeen(accountId int) error
	GetRoomByExternalId(externalId string) (Room, error)
	GetRoomWithSubscribers(roomId int) (*Room, error)
	CreateRoom(params CreateRoomParams) (Room, error)
	GetOrCreatePrivateRoom(externalId string, userA, userB int) (Room, error)
	DeleteRoom(id int) error
	CreateSubscription(accountId, roomId int) (Subscription, error)
	SubscriptionExists(accountId, roomId int) bool
	ListSubscriptions(accountId int) ([]Subscription, error)
	DeleteSubscription(accountId, roomId int) error
	UpdateLastReadSeqId(accountId, roomId, seqId int) error
	SaveMessage(msg Message) error
	GetMessages(roomId, since, before, limit int) ([]Message, error)
}
