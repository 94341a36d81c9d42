package cons

// WS 上行事件（client -> server）
const (
	EventAuthenticate   = "authenticate"
	EventJoinChat       = "join_chat"
	EventLeaveChat      = "leave_chat"
	EventSendMessage    = "send_message"
	EventTypingStart    = "typing_start"
	EventTypingStop     = "typing_stop"
	EventAddReaction    = "add_reaction"
	EventRemoveReaction = "remove_reaction"
	EventLikePost       = "like_post"
	EventCommentPost    = "comment_post"
	EventFollowUser     = "follow_user"
	EventSetStatus      = "set_status"
	EventSubscribePost  = "subscribe_post"
	EventSubscribeUser  = "subscribe_user"
)

// WS 下行事件（server -> client）
const (
	EventAuthenticated        = "authenticated"
	EventAuthenticationFailed = "authentication_failed"
	EventChatJoined           = "chat_joined"
	EventUserJoinedChat       = "user_joined_chat"
	EventNewMessage           = "new_message"
	EventReactionAdded        = "reaction_added"
	EventReactionRemoved      = "reaction_removed"
	EventReactionAddedAck     = "reaction_added_ack"
	EventReactionRemovedAck   = "reaction_removed_ack"
	EventNotification         = "notification"
	EventUserStatusChange     = "user_status_change"
)
