package telegram

const (
	textWelcome = "Hi! I send weather forecasts.\n" +
		"Use /set to choose when you want a daily forecast,\n" +
		"or just send me a city name to get the forecast right away."
	textHelpMenu       = "Choose a command to learn more:"
	textUnknownCommand = "Unknown command. Send /help to see what I can do."

	textSetUsage    = "Please use the format: /set HH:MM, City (for example, /set 09:30, Moscow)."
	textSetBadInput = "Invalid format. Please use: /set HH:MM, City (for example, /set 09:30, Moscow)."
	textSetDone     = "New notification added: weather forecast for %s every day at %s (%s time)."

	textNoSubscriptions = "You have no notifications. Use /set to create one."
	textNothingToDelete = "You have no notifications to delete."
	textListHeader      = "Your weather notifications:"
	textSubscriptionRow = "ID %d: %s - %s"

	textEditChoose   = "Choose a notification to edit:"
	textEditPrompt   = "Send the new time and city as HH:MM, City (for example, 10:00, Saint Petersburg)."
	textEditBadInput = "Invalid format. Please use HH:MM, City (for example, 10:00, Saint Petersburg), or /cancel."
	textEditDone     = "Notification updated: weather forecast for %s every day at %s (%s time)."
	textEditCanceled = "Editing canceled."
	textNoEdit       = "There is nothing to cancel."
	textEditExpired  = "Editing timed out. Send /edit to start again."

	textDeleteChoose = "Choose a notification to delete:"
	textDeleteDone   = "Notification ID %d was deleted."

	textNotFound = "Notification not found or it does not belong to you."

	textClearDone    = "Your weather notifications were deleted. You will no longer receive forecasts."
	textClearNothing = "You have no weather notifications."

	textForecastChoose = "Choose a city from the list or send a city name:"
	textBadCity        = "Please send a valid city name."

	textInternalError = "Something went wrong. Please try again later."
	textUnknownHelp   = "Unknown command."
)

var helpTexts = map[string]string{
	"start": "/start - Start using the bot.\n" +
		"Shows the welcome message and the command keyboard.",
	"help": "/help - Get help.\n" +
		"Lists the available commands with their descriptions.",
	"set": "/set - Set the time for daily weather notifications.\n" +
		"Format: /set HH:MM, City (for example, /set 09:30, Moscow).",
	"forecast": "/forecast - Get the weather forecast.\n" +
		"Pick a city from the list or send a city name.",
	"edit": "/edit - Change the time or city of a notification.\n" +
		"Send /edit and follow the instructions.",
	"clear": "/clear - Delete all of your notifications.\n" +
		"You will no longer receive weather forecasts.",
	"list": "/list - Show all of your weather notifications.",
	"delete": "/delete - Delete one notification.\n" +
		"Send /delete and follow the instructions.",
	"cancel": "/cancel - Stop editing a notification.",
}

// helpOrder is the order of the /help buttons.
var helpOrder = []string{"start", "help", "set", "forecast", "edit", "clear", "list", "delete", "cancel"}
