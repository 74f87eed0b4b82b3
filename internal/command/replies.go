package command

const helpText = `📊 *Stock Alert Bot - Commands*

*Get Stock Price:*
• ` + "`price TCS`" + ` - Current price of TCS
• ` + "`price INFY`" + ` - Current price of Infosys

*Set Price Alerts:*
• ` + "`alert add TCS -8`" + ` - Alert on an 8% drop
• ` + "`alert add TCS +8`" + ` - Alert on an 8% spike
Supported thresholds: 5, 7, 8, 9, 10

*Manage Alerts:*
• ` + "`alert list`" + ` - View your active alerts
• ` + "`alert remove 123`" + ` - Remove alert by ID
• ` + "`alert remove TCS`" + ` - Remove all TCS alerts

*General:*
• ` + "`help`" + ` - Show this message

Alerts are recurring and stay active until you remove them.`

const defaultReply = "I'm here to help! You can:\n" +
	"- Check stock prices: 'price TCS'\n" +
	"- Set alerts: 'alert add TCS -8'\n" +
	"- List alerts: 'alert list'\n" +
	"Type 'help' for all commands."

const (
	replyProcessingError  = "❌ Error processing command. Please try again later."
	replyInvalidThreshold = "❌ Invalid threshold: %s\n\nSupported:\n- Drops: -5, -7, -8, -9, -10\n- Spikes: +5, +7, +8, +9, +10"
	replyInvalidSymbol    = "❌ Invalid stock symbol: %s"
	replyPriceNotFound    = "❌ Unable to fetch price for %s. Please check the symbol and try again."
	replyPriceDown        = "⏳ Price service is busy right now. Please try %s again in a minute."
	replyDuplicate        = "⚠️ You already have active %d%% %s alerts for %s.\n\nAlert IDs: %s\n\nUse 'alert remove %s' to remove all alerts for this stock."
	replyNoAlerts         = "📋 You don't have any active alerts.\n\nType 'help' to see how to create alerts."
	replyNoAlertsFound    = "❌ No alerts found."
	replyAlertNotFound    = "❌ Alert #%d not found or already removed."
	replySymbolNotFound   = "❌ No active alerts found for %s."
	replyAlertRemoved     = "✅ Alert removed successfully (ID: #%d)"
	replyAlertsRemoved    = "✅ Removed %d alert(s) for %s"
)
