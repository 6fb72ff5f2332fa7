package prompts

import "fmt"

// Summary prompts keyed by ISO 639-1 code. SummaryPrompt falls back to Portuguese.
var summaryPrompts = map[string]string{
	"pt": `Entenda o contexto desse áudio e faça um resumo super enxuto sobre o que se trata.
Esse áudio foi enviado pelo WhatsApp.
Escreva APENAS o resumo do áudio como se fosse você que estivesse enviando essa mensagem!
Não cumprimente, não escreva nada antes nem depois do resumo, responda apenas um resumo enxuto do que foi falado no áudio.`,

	"en": `Understand the context of this audio and make a very concise summary of what it's about.
This audio was sent via WhatsApp.
Write ONLY the summary of the audio as if you were sending this message yourself!
Don't greet, don't write anything before or after the summary, respond with just a concise summary of what was said in the audio.`,

	"es": `Entiende el contexto de este audio y haz un resumen muy conciso sobre de qué se trata.
Este audio fue enviado por WhatsApp.
Escribe SOLO el resumen del audio como si tú estuvieras enviando este mensaje.
No saludes, no escribas nada antes ni después del resumen, responde únicamente un resumen conciso de lo dicho en el audio.`,

	"fr": `Comprenez le contexte de cet audio et faites un résumé très concis de ce dont il s'agit.
Cet audio a été envoyé via WhatsApp.
Écrivez UNIQUEMENT le résumé de l'audio comme si c'était vous qui envoyiez ce message.
Ne saluez pas, n'écrivez rien avant ou après le résumé, répondez seulement par un résumé concis de ce qui a été dit dans l'audio.`,

	"de": `Verstehen Sie den Kontext dieses Audios und erstellen Sie eine sehr kurze Zusammenfassung, worum es geht.
Dieses Audio wurde über WhatsApp gesendet.
Schreiben Sie NUR die Zusammenfassung des Audios, als ob Sie diese Nachricht senden würden.
Grüßen Sie nicht, schreiben Sie nichts vor oder nach der Zusammenfassung, antworten Sie nur mit einer kurzen Zusammenfassung dessen, was im Audio gesagt wurde.`,

	"it": `Comprendi il contesto di questo audio e fai un riassunto molto conciso di cosa si tratta.
Questo audio è stato inviato tramite WhatsApp.
Scrivi SOLO il riassunto dell'audio come se fossi tu a inviare questo messaggio.
Non salutare, non scrivere nulla prima o dopo il riassunto, rispondi solo con un riassunto conciso di ciò che è stato detto nell'audio.`,

	"ja": `この音声の内容を理解し、それが何について話されているのかを非常に簡潔に要約してください。
この音声はWhatsAppで送られたものです。
あなたがそのメッセージを送っているように、音声の要約だけを記述してください。
挨拶や前置き、後書きは書かず、音声で話された内容の簡潔な要約のみを返信してください。`,

	"ko": `이 오디오의 맥락을 이해하고, 무엇에 관한 것인지 매우 간략하게 요약하세요.
이 오디오는 WhatsApp을 통해 전송되었습니다.
마치 당신이 메시지를 보내는 것처럼 오디오의 요약만 작성하세요.
인사하거나, 요약 전후로 아무것도 쓰지 말고, 오디오에서 말한 내용을 간략하게 요약한 답변만 하세요.`,

	"zh": `理解这个音频的上下文，并简洁地总结它的内容。
这个音频是通过WhatsApp发送的。
请仅以摘要的形式回答，就好像是你在发送这条消息。
不要问候，也不要在摘要前后写任何内容，只需简短地总结音频中所说的内容。`,

	"ro": `Înțelege contextul acestui audio și creează un rezumat foarte concis despre ce este vorba.
Acest audio a fost trimis prin WhatsApp.
Scrie DOAR rezumatul audio-ului ca și cum tu ai trimite acest mesaj.
Nu saluta, nu scrie nimic înainte sau după rezumat, răspunde doar cu un rezumat concis despre ce s-a spus în audio.`,

	"ru": `Поймите контекст этого аудио и сделайте очень краткое резюме, о чем идет речь.
Это аудио было отправлено через WhatsApp.
Напишите ТОЛЬКО резюме аудио, как будто вы отправляете это сообщение.
Не приветствуйте, не пишите ничего до или после резюме, ответьте только кратким резюме того, что говорилось в аудио.`,
}

const summaryFallbackLanguage = "pt"

// SummaryPrompt returns the summary instruction for language and whether a dedicated prompt exists.
func SummaryPrompt(language string) (string, bool) {
	if p, ok := summaryPrompts[language]; ok {
		return p, true
	}
	return summaryPrompts[summaryFallbackLanguage], false
}

// SummaryRequest builds the user message asking for a summary of text.
func SummaryRequest(language, text string) string {
	prompt, _ := SummaryPrompt(language)
	return fmt.Sprintf("%s\n\nText to summarize: %s", prompt, text)
}
