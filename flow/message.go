package flow

import (
	"strings"

	"github.com/google/uuid"
	"github.com/zapflowhq/zapflow/logger"
	"github.com/zapflowhq/zapflow/metrics"
	"github.com/zapflowhq/zapflow/model"
	"github.com/zapflowhq/zapflow/util"
	"go.uber.org/zap"
)

// sendMessage builds and sends a message node's content. The thread entry is
// appended in sending state before the gateway call and finalized after it;
// send failures are logged as notes and never abort the run.
func (it *Interpreter) sendMessage(node *model.Node, contact *model.Contact, notes *model.Notes) {
	spec := node.Message
	body := strings.ReplaceAll(spec.Body, "{wa_id}", contact.WaId)
	link := spec.Url
	if link != "" && it.shortener != nil {
		short, err := it.shortener.Shorten(link, spec.ImageUrl, node.Id)
		if err != nil || short == "" {
			notes.Addf("short:%s:falha", node.Id)
		} else {
			link = short
		}
	}
	if link != "" {
		body = arrangeLink(body, link, spec.LinkMode)
	}

	msg := &model.Message{
		Id:        uuid.New().String(),
		WaId:      contact.WaId,
		Direction: model.DIRECTION_OUT,
		Status:    model.STATUS_SENDING,
		Body:      body,
		At:        it.now(),
	}
	if spec.ImageUrl != "" {
		msg.Kind = model.MESSAGE_KIND_IMAGE
		msg.MediaUrl = spec.ImageUrl
	} else {
		msg.Kind = model.MESSAGE_KIND_TEXT
	}
	if err := it.thread.AppendMessage(msg); err != nil {
		logger.Warn("error appending outbound message", zap.String("waId", contact.WaId), zap.Error(err))
	}

	var providerId string
	var err error
	if spec.ImageUrl != "" {
		providerId, err = it.sender.SendImage(contact.WaId, spec.ImageUrl, body)
	} else {
		providerId, err = it.sender.SendText(contact.WaId, body, link != "")
	}
	if err != nil {
		logger.Error("error sending message", zap.String("waId", contact.WaId), zap.String("node", node.Id), zap.Error(err))
		notes.Addf("msg:%s:falha", node.Id)
		metrics.MessagesFailed.Inc()
		if err := it.thread.UpdateMessageStatus(contact.WaId, msg.Id, model.STATUS_FAILED, ""); err != nil {
			logger.Warn("error marking message failed", zap.String("waId", contact.WaId), zap.Error(err))
		}
		return
	}
	metrics.MessagesSent.Inc()
	if err := it.thread.UpdateMessageStatus(contact.WaId, msg.Id, model.STATUS_SENT, providerId); err != nil {
		logger.Warn("error marking message sent", zap.String("waId", contact.WaId), zap.Error(err))
	}
}

// messageBranch resolves the branch after a message node: a quick-reply
// option matching the inbound text wins when an edge for it exists.
func (it *Interpreter) messageBranch(fl *model.FlowDefinition, node *model.Node, notes *model.Notes, inboundText string) string {
	for _, option := range node.Message.Options {
		if util.EqualFold(inboundText, option) && fl.HasEdge(node.Id, option) {
			notes.Addf("opt:%s:%s", node.Id, option)
			return option
		}
	}
	return model.BRANCH_DEFAULT
}

func arrangeLink(body string, link string, mode model.LinkMode) string {
	switch mode {
	case model.LINK_MODE_ONLY:
		return link
	case model.LINK_MODE_FIRST:
		if body == "" {
			return link
		}
		return link + "\n\n" + body
	}
	// last is the default placement
	if body == "" {
		return link
	}
	return body + "\n\n" + link
}
